package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/itdsea/coursework/core"
	"github.com/itdsea/coursework/core/assignment"
)

type assignmentApi struct {
	deps *ServerDeps
}

func registerAssignmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *ServerDeps) {
	api := assignmentApi{deps: deps}

	cg := g.Group("/coursework/:id/assignments", jwt)
	cg.POST("", api.create, staffMiddleware())
	cg.GET("/:aid/submit", api.submit)
	cg.GET("/:aid/view", api.view)

	fg := g.Group("/files", jwt)
	fg.POST("", api.uploadFile)
	fg.POST("/delete", api.deleteFile)

	g.POST("/memo", api.editMemo, jwt)

	rg := g.Group("/assignments/:aid/result", jwt, staffMiddleware())
	rg.POST("", api.buildBundle)
	rg.GET("", api.fetchBundle)
}

// Handlers

func (api *assignmentApi) create(ctx echo.Context) error {
	var data assignment.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	a, err := api.deps.AssignSvc.Create(ctx.Request().Context(), ctxUsr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

// submit opens the student's submission, creating an empty one on first
// access.
func (api *assignmentApi) submit(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sub, err := api.deps.AssignSvc.OpenOrCreateSubmission(ctx.Request().Context(), ctxUsr, ctx.Param("aid"))
	if err != nil {
		return errors.Wrap(err, "opening submission")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *assignmentApi) view(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	res, err := api.deps.AssignSvc.ViewResult(ctx.Request().Context(), ctxUsr, ctx.Param("aid"), ctx.QueryParam("student_id"))
	if err != nil {
		return errors.Wrap(err, "viewing result")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *assignmentApi) uploadFile(ctx echo.Context) error {
	assignmentID := ctx.FormValue("assignment_id")
	if assignmentID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "assignment_id", Error: "this field is required"})
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "file", Error: "this field is required"})
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	src, err := fh.Open()
	if err != nil {
		return core.NewIOError(err, "opening upload")
	}
	defer src.Close()

	f, err := api.deps.AssignSvc.AttachFile(ctx.Request().Context(), ctxUsr, assignmentID, fh.Filename, src, fh.Size)
	if err != nil {
		return errors.Wrap(err, "attaching file")
	}
	return ctx.JSON(http.StatusCreated, f)
}

func (api *assignmentApi) deleteFile(ctx echo.Context) error {
	var data DeleteFileRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DeleteFileRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err = api.deps.AssignSvc.DeleteFile(ctx.Request().Context(), ctxUsr, data.FileID); err != nil {
		return errors.Wrap(err, "deleting file")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *assignmentApi) editMemo(ctx echo.Context) error {
	var data MemoRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MemoRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sub, err := api.deps.AssignSvc.EditMemo(ctx.Request().Context(), ctxUsr, data.SubmissionID, data.Memo)
	if err != nil {
		return errors.Wrap(err, "editing memo")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *assignmentApi) buildBundle(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	a, err := api.deps.AssignSvc.BuildResultsBundle(ctx.Request().Context(), ctxUsr, ctx.Param("aid"))
	if err != nil {
		return errors.Wrap(err, "building bundle")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) fetchBundle(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	a, rc, err := api.deps.AssignSvc.FetchBundle(ctx.Request().Context(), ctxUsr, ctx.Param("aid"))
	if err != nil {
		return errors.Wrap(err, "fetching bundle")
	}
	defer rc.Close()

	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+a.Title+`.zip"`)
	return ctx.Stream(http.StatusOK, "application/zip", rc)
}

type (
	DeleteFileRequest struct {
		FileID string `json:"file_id" validate:"required"`
	}

	MemoRequest struct {
		SubmissionID string `json:"submission_id" validate:"required"`
		Memo         string `json:"memo"`
	}
)

func (dr *DeleteFileRequest) Validate(validate *validator.Validate) error {
	dr.FileID = core.CleanString(dr.FileID)
	return validate.Struct(dr)
}

func (mr *MemoRequest) Validate(validate *validator.Validate) error {
	mr.SubmissionID = core.CleanString(mr.SubmissionID)
	return validate.Struct(mr)
}
