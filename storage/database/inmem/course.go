package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/itdsea/coursework/core"
	"github.com/itdsea/coursework/core/course"
	"github.com/itdsea/coursework/core/user"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCoursework(ctx context.Context, cw course.Coursework, creatorID string, exec ...core.DBExecutor) (course.Coursework, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var crs *course.Course
	for _, c := range repo.db.courses {
		if c.Name == cw.CourseName {
			crs = c
			break
		}
	}
	if crs != nil {
		for _, existing := range repo.db.courseworks {
			if existing.CourseID == crs.ID {
				return course.Coursework{}, course.ErrCourseworkExists
			}
		}
	} else {
		crs = &course.Course{ID: uuid.New().String(), Name: cw.CourseName, CreatedAt: cw.CreatedAt}
		repo.db.courses[crs.ID] = crs
	}

	cw.ID = uuid.New().String()
	cw.CourseID = crs.ID
	repo.db.courseworks[cw.ID] = &cw
	repo.db.members[memberKey{cw.ID, creatorID}] = true
	return cw, nil
}

func (repo *courseRepository) GetCoursework(ctx context.Context, id string, exec ...core.DBExecutor) (course.Coursework, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if cw, ok := repo.db.courseworks[id]; ok {
		return *cw, nil
	}
	return course.Coursework{}, course.ErrNotFound
}

func (repo *courseRepository) QueryCourseworks(ctx context.Context, exec ...core.DBExecutor) ([]course.Coursework, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	cws := make([]course.Coursework, 0, len(repo.db.courseworks))
	for _, cw := range repo.db.courseworks {
		cws = append(cws, *cw)
	}
	sort.Slice(cws, func(i, j int) bool { return cws[i].CourseName < cws[j].CourseName })
	return cws, nil
}

func (repo *courseRepository) AddMember(ctx context.Context, courseworkID, userID string, exec ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.members[memberKey{courseworkID, userID}] = true
	return nil
}

func (repo *courseRepository) IsMember(ctx context.Context, courseworkID, userID string, exec ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return repo.db.members[memberKey{courseworkID, userID}], nil
}

func (repo *courseRepository) QueryMembers(ctx context.Context, courseworkID string, exec ...core.DBExecutor) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var members []user.User
	for key, ok := range repo.db.members {
		if !ok || key.CourseworkID != courseworkID {
			continue
		}
		if u, found := repo.db.users[key.UserID]; found {
			members = append(members, *u)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Username < members[j].Username })
	return members, nil
}

func (repo *courseRepository) CreateJoinRequest(ctx context.Context, req course.JoinRequest, exec ...core.DBExecutor) (course.JoinRequest, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, r := range repo.db.requests {
		if r.CourseworkID == req.CourseworkID && r.UserID == req.UserID {
			return course.JoinRequest{}, course.ErrRequestExists
		}
	}
	req.ID = uuid.New().String()
	if u, ok := repo.db.users[req.UserID]; ok {
		req.Username = u.Username
	}
	repo.db.requests[req.ID] = &req
	return req, nil
}

func (repo *courseRepository) GetJoinRequest(ctx context.Context, id string, exec ...core.DBExecutor) (course.JoinRequest, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if req, ok := repo.db.requests[id]; ok {
		return *req, nil
	}
	return course.JoinRequest{}, course.ErrRequestNotFound
}

func (repo *courseRepository) DeleteJoinRequest(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.requests[id]; !ok {
		return course.ErrRequestNotFound
	}
	delete(repo.db.requests, id)
	return nil
}

func (repo *courseRepository) DeleteJoinRequestForUser(ctx context.Context, courseworkID, userID string, exec ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for id, r := range repo.db.requests {
		if r.CourseworkID == courseworkID && r.UserID == userID {
			delete(repo.db.requests, id)
		}
	}
	return nil
}

func (repo *courseRepository) QueryJoinRequests(ctx context.Context, exec ...core.DBExecutor) ([]course.JoinRequest, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	reqs := make([]course.JoinRequest, 0, len(repo.db.requests))
	for _, r := range repo.db.requests {
		reqs = append(reqs, *r)
	}
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].ID < reqs[j].ID
		}
		return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
	})
	return reqs, nil
}

func (repo *courseRepository) CountJoinRequests(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return len(repo.db.requests), nil
}
