package assignment

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"

	"github.com/itdsea/coursework/core"
	"github.com/itdsea/coursework/core/user"
)

const bundleName = "results.zip"

// BuildResultsBundle collects every submitted file of the assignment into a
// single zip and attaches it. Staff only. Building is idempotent: once a
// bundle is attached, later calls return the assignment unchanged. The
// archive is assembled fully in memory and attached only after the payload
// is stored, so a failed build leaves nothing behind.
func (svc *Service) BuildResultsBundle(ctx context.Context, actor user.User, assignmentID string) (Assignment, error) {
	if !user.CanBuildBundle(actor.Role) {
		return Assignment{}, core.ErrPermissionDenied
	}

	mu := svc.buildLock(assignmentID)
	mu.Lock()
	defer mu.Unlock()

	a, err := svc.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return Assignment{}, err
	}
	if a.HasBundle() {
		svc.dropBuildLock(assignmentID)
		return a, nil
	}

	files, err := svc.repo.QueryAssignmentFiles(ctx, a.ID)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "querying files")
	}
	if len(files) == 0 {
		return Assignment{}, ErrNoFiles
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].StudentUsername != files[j].StudentUsername {
			return files[i].StudentUsername < files[j].StudentUsername
		}
		return files[i].Path < files[j].Path
	})

	cw, err := svc.courseSvc.Get(ctx, a.CourseworkID)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "finding coursework")
	}

	buf, err := svc.assembleBundle(ctx, a, files)
	if err != nil {
		return Assignment{}, err
	}

	path := StorageDir(cw.CourseName, a) + "/" + bundleName
	saveCtx, cancel := context.WithTimeout(ctx, svc.conf.Media.StorageTimeout)
	defer cancel()
	if err = svc.storage.Save(saveCtx, path, buf); err != nil {
		return Assignment{}, core.NewIOError(err, "storing bundle")
	}

	updated, err := svc.repo.SetAssignmentArchive(ctx, a.ID, path)
	if err != nil {
		// drop the orphan payload; the attach is the commit point
		if delErr := svc.storage.Delete(ctx, path); delErr != nil {
			svc.logger.Error("deleting orphan bundle", "path", path, "error", delErr)
		}
		return Assignment{}, errors.Wrap(err, "attaching bundle")
	}
	if !updated {
		// another build won between our existence check and the attach
		if delErr := svc.storage.Delete(ctx, path); delErr != nil && errors.Cause(delErr) != core.ErrFileNotFound {
			svc.logger.Error("deleting duplicate bundle", "path", path, "error", delErr)
		}
		svc.dropBuildLock(assignmentID)
		return svc.repo.GetAssignment(ctx, a.ID)
	}

	svc.dropBuildLock(assignmentID)
	a.ArchivePath = path
	return a, nil
}

// FetchBundle opens the attached bundle for download.
func (svc *Service) FetchBundle(ctx context.Context, actor user.User, assignmentID string) (Assignment, io.ReadCloser, error) {
	if !user.CanBuildBundle(actor.Role) {
		return Assignment{}, nil, core.ErrPermissionDenied
	}
	a, err := svc.repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return Assignment{}, nil, err
	}
	if !a.HasBundle() {
		return Assignment{}, nil, ErrBundleNotFound
	}
	rc, err := svc.storage.Open(ctx, a.ArchivePath)
	if err != nil {
		if errors.Cause(err) == core.ErrFileNotFound {
			return Assignment{}, nil, ErrBundleNotFound
		}
		return Assignment{}, nil, core.NewIOError(err, "opening bundle")
	}
	return a, rc, nil
}

// assembleBundle zips the payloads in the order given. Entry timestamps are
// pinned to the deadline so rebuilding the same inputs yields identical bytes.
func (svc *Service) assembleBundle(ctx context.Context, a Assignment, files []UploadedFile) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		if err := svc.archivePayload(ctx, zw, a, f); err != nil {
			zw.Close()
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, core.NewIOError(err, "finalizing bundle")
	}
	return &buf, nil
}

// archivePayload copies one stored payload into the zip, bounded by the
// storage timeout like every other storage access.
func (svc *Service) archivePayload(ctx context.Context, zw *zip.Writer, a Assignment, f UploadedFile) error {
	openCtx, cancel := context.WithTimeout(ctx, svc.conf.Media.StorageTimeout)
	defer cancel()

	rc, err := svc.storage.Open(openCtx, f.Path)
	if err != nil {
		return core.NewIOError(err, "opening payload "+f.Path)
	}
	defer rc.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     entryName(f.Path),
		Method:   zip.Deflate,
		Modified: a.Deadline,
	})
	if err == nil {
		_, err = io.Copy(w, rc)
	}
	if err != nil {
		return core.NewIOError(err, "archiving payload "+f.Path)
	}
	return nil
}

func (svc *Service) buildLock(assignmentID string) *sync.Mutex {
	svc.buildMu.Lock()
	defer svc.buildMu.Unlock()
	mu, ok := svc.buildLocks[assignmentID]
	if !ok {
		mu = &sync.Mutex{}
		svc.buildLocks[assignmentID] = mu
	}
	return mu
}

// dropBuildLock forgets the per-assignment lock once a bundle is attached;
// builds are idempotent from then on so latecomers need no serialization.
func (svc *Service) dropBuildLock(assignmentID string) {
	svc.buildMu.Lock()
	delete(svc.buildLocks, assignmentID)
	svc.buildMu.Unlock()
}

// entryName strips the storage directory, keeping the per-student base name.
func entryName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
