package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/itdsea/coursework/core"
	"github.com/itdsea/coursework/core/assignment"
	"github.com/itdsea/coursework/core/course"
	"github.com/itdsea/coursework/core/user"
)

type courseworkApi struct {
	deps *ServerDeps
}

func registerCourseworkAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *ServerDeps) {
	api := courseworkApi{deps: deps}

	cg := g.Group("/coursework", jwt)

	cg.GET("", api.query)
	cg.POST("", api.create)
	cg.POST("/join", api.join)

	rg := cg.Group("/requests", staffMiddleware())
	rg.GET("", api.queryRequests)
	rg.GET("/count", api.countRequests)
	rg.POST("/:id", api.resolveRequest)

	cg.GET("/:id", api.retrieve)
}

// Handlers

func (api *courseworkApi) create(ctx echo.Context) error {
	var data course.NewCoursework
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCoursework")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	cw, err := api.deps.CourseSvc.CreateCoursework(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "creating coursework")
	}
	return ctx.JSON(http.StatusCreated, cw)
}

func (api *courseworkApi) query(ctx echo.Context) error {
	cws, err := api.deps.CourseSvc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying courseworks")
	}
	if cws == nil {
		cws = []course.Coursework{}
	}
	return ctx.JSON(http.StatusOK, cws)
}

func (api *courseworkApi) retrieve(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	cw, err := api.deps.CourseSvc.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding coursework")
	}

	enrolled, err := api.deps.CourseSvc.IsEnrolled(reqCtx, ctxUsr, cw.ID)
	if err != nil {
		return errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return course.ErrNotEnrolled
	}

	assignments, err := api.deps.AssignSvc.QueryForCoursework(reqCtx, ctxUsr, cw.ID)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	members, err := api.deps.CourseSvc.Members(reqCtx, cw.ID)
	if err != nil {
		return errors.Wrap(err, "querying members")
	}
	if assignments == nil {
		assignments = []assignment.Assignment{}
	}
	if members == nil {
		members = []user.User{}
	}

	return ctx.JSON(http.StatusOK, CourseworkDetailResponse{
		Coursework:  cw,
		Assignments: assignments,
		Members:     members,
	})
}

func (api *courseworkApi) join(ctx echo.Context) error {
	var data JoinRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to JoinRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqCtx := ctx.Request().Context()
	if data.RequestApproval {
		if err = api.deps.CourseSvc.RequestJoin(reqCtx, ctxUsr, data.CourseworkID); err != nil {
			return errors.Wrap(err, "requesting to join")
		}
		return ctx.JSON(http.StatusOK, SuccessResponse{Message: "join request submitted"})
	}

	if err = api.deps.CourseSvc.Join(reqCtx, ctxUsr, data.CourseworkID); err != nil {
		return errors.Wrap(err, "joining coursework")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Message: "enrolled"})
}

func (api *courseworkApi) queryRequests(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	reqs, err := api.deps.CourseSvc.PendingRequests(ctx.Request().Context(), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "querying join requests")
	}
	if reqs == nil {
		reqs = []course.JoinRequest{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *courseworkApi) countRequests(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	count, err := api.deps.CourseSvc.PendingRequestCount(ctx.Request().Context(), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "counting join requests")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"count": count})
}

func (api *courseworkApi) resolveRequest(ctx echo.Context) error {
	var data ResolveRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResolveRequest")
	}
	if err := data.Validate(api.deps.Validate); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.deps.UserSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	err = api.deps.CourseSvc.ResolveJoinRequest(ctx.Request().Context(), ctxUsr, ctx.Param("id"), course.Decision(data.Decision))
	if err != nil {
		return errors.Wrap(err, "resolving join request")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Message: "request resolved"})
}

type (
	JoinRequest struct {
		CourseworkID    string `json:"coursework_id" validate:"required"`
		RequestApproval bool   `json:"request_approval"`
	}

	ResolveRequest struct {
		Decision string `json:"decision" validate:"required,oneof=accept decline"`
	}

	CourseworkDetailResponse struct {
		Coursework  course.Coursework       `json:"coursework"`
		Assignments []assignment.Assignment `json:"assignments"`
		Members     []user.User             `json:"members"`
	}
)

func (jr *JoinRequest) Validate(validate *validator.Validate) error {
	jr.CourseworkID = core.CleanString(jr.CourseworkID)
	return validate.Struct(jr)
}

func (rr *ResolveRequest) Validate(validate *validator.Validate) error {
	rr.Decision = core.CleanString(rr.Decision, true /* lower */)
	return validate.Struct(rr)
}
