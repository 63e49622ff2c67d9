// Package admin implements the administrative user-management operations:
// profile update, password change, and deletion. Each operation builds a
// fresh flow sequencer, registers its named steps, and runs it to exactly
// one terminal: a renderable Outcome or a system error.
package admin

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pitabwire/karani/internal/capability"
	"github.com/pitabwire/karani/internal/flow"
	"github.com/pitabwire/karani/internal/observability"
	"github.com/pitabwire/karani/internal/store"
	"github.com/pitabwire/karani/model"
)

const tracerName = "github.com/pitabwire/karani/internal/admin"

// Step names. The validate step is always the entry point.
const (
	stepValidate          = "validate"
	stepDuplicateUsername = "duplicateUsernameCheck"
	stepDuplicateEmail    = "duplicateEmailCheck"
	stepPatchUser         = "patchUser"
	stepPatchAdmin        = "patchAdmin"
	stepPatchAccount      = "patchAccount"
	stepPopulateRoles     = "populateRoles"
	stepDeleteAccount     = "deleteAccount"
	stepDeleteUser        = "deleteUser"
)

// User-facing validation messages.
const (
	msgRequired         = "required"
	msgUsernameChars    = "only use letters, numbers, '-', '_'"
	msgEmailFormat      = "invalid email format"
	msgUsernameTaken    = "username already taken"
	msgEmailTaken       = "email already taken"
	msgPasswordMismatch = "passwords do not match"
	msgMayNotDelete     = "you may not delete users"
	msgMayNotDeleteSelf = "you may not delete yourself"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9-_]+$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9\-_.+]+@[a-zA-Z0-9\-_.]+\.[a-zA-Z0-9\-_]+$`)
)

// Guard decides whether a principal holds an administrative capability.
type Guard interface {
	Allows(rctx *model.RequestContext, capability string) bool
}

// Service drives the user-management pipelines against the entity store.
type Service struct {
	store   store.UserStore
	guard   Guard
	logger  *zap.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewService creates a Service. The metrics may be nil.
func NewService(st store.UserStore, guard Guard, logger *zap.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   st,
		guard:   guard,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}
}

// UpdateRequest carries the inputs of the profile-update operation.
type UpdateRequest struct {
	ID       string
	Username string
	Email    string
	IsActive string
}

// PasswordRequest carries the inputs of the password-change operation.
type PasswordRequest struct {
	ID          string
	NewPassword string
	Confirm     string
}

// DeleteRequest carries the inputs of the delete operation.
type DeleteRequest struct {
	ID string
}

// Update runs the profile-update pipeline:
// validate → duplicateUsernameCheck → duplicateEmailCheck → patchUser →
// patchAdmin → patchAccount → populateRoles → response.
func (s *Service) Update(ctx context.Context, rctx *model.RequestContext, req UpdateRequest) (*model.Outcome, error) {
	seq := flow.New()
	out := seq.Outcome()

	// Threaded through the mutation and cascade steps.
	var user *model.User

	seq.On(stepValidate, func(_ context.Context) flow.Next {
		if req.IsActive == "" {
			req.IsActive = "no"
		}

		if req.Username == "" {
			out.Field("username", msgRequired)
		} else if !usernamePattern.MatchString(req.Username) {
			out.Field("username", msgUsernameChars)
		}

		if req.Email == "" {
			out.Field("email", msgRequired)
		} else if !emailPattern.MatchString(req.Email) {
			out.Field("email", msgEmailFormat)
		}

		if out.HasErrors() {
			return flow.Respond()
		}
		return flow.Goto(stepDuplicateUsername)
	})

	seq.On(stepDuplicateUsername, func(ctx context.Context) flow.Next {
		existing, err := s.store.FindByUsername(ctx, req.Username, req.ID)
		if err != nil {
			return flow.Fail(err)
		}
		if existing != nil {
			out.Field("username", msgUsernameTaken)
			return flow.Respond()
		}
		return flow.Goto(stepDuplicateEmail)
	})

	seq.On(stepDuplicateEmail, func(ctx context.Context) flow.Next {
		existing, err := s.store.FindByEmail(ctx, strings.ToLower(req.Email), req.ID)
		if err != nil {
			return flow.Fail(err)
		}
		if existing != nil {
			out.Field("email", msgEmailTaken)
			return flow.Respond()
		}
		return flow.Goto(stepPatchUser)
	})

	seq.On(stepPatchUser, func(ctx context.Context) flow.Next {
		updated, err := s.store.UpdateUser(ctx, req.ID, store.UserPatch{
			IsActive: req.IsActive,
			Username: req.Username,
			Email:    strings.ToLower(req.Email),
			Search:   []string{req.Username, req.Email},
		})
		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			// The pre-checks raced another writer; the store's constraint
			// is authoritative, so render the same field error.
			out.Field(conflict.Field, conflict.Field+" already taken")
			return flow.Respond()
		}
		if err != nil {
			return flow.Fail(err)
		}
		user = updated
		return flow.Goto(stepPatchAdmin)
	})

	seq.On(stepPatchAdmin, func(ctx context.Context) flow.Next {
		if user.Roles.AdminID == "" {
			return flow.Goto(stepPatchAccount)
		}
		ref := model.UserRef{ID: req.ID, Name: user.Username}
		if err := s.store.UpdateAdmin(ctx, user.Roles.AdminID, ref); err != nil {
			return flow.Fail(err)
		}
		return flow.Goto(stepPatchAccount)
	})

	seq.On(stepPatchAccount, func(ctx context.Context) flow.Next {
		if user.Roles.AccountID == "" {
			return flow.Goto(stepPopulateRoles)
		}
		ref := model.UserRef{ID: req.ID, Name: user.Username}
		if err := s.store.UpdateAccount(ctx, user.Roles.AccountID, ref); err != nil {
			return flow.Fail(err)
		}
		return flow.Goto(stepPopulateRoles)
	})

	seq.On(stepPopulateRoles, func(ctx context.Context) flow.Next {
		populated, err := s.store.Populate(ctx, user)
		if err != nil {
			return flow.Fail(err)
		}
		out.Put("user", populated)
		return flow.Respond()
	})

	return s.run(ctx, rctx, "update", req.ID, seq)
}

// Password runs the password-change pipeline: validate → patchUser → response.
func (s *Service) Password(ctx context.Context, rctx *model.RequestContext, req PasswordRequest) (*model.Outcome, error) {
	seq := flow.New()
	out := seq.Outcome()

	seq.On(stepValidate, func(_ context.Context) flow.Next {
		if req.NewPassword == "" {
			out.Field("newPassword", msgRequired)
		}
		if req.Confirm == "" {
			out.Field("confirm", msgRequired)
		}
		if req.NewPassword != req.Confirm {
			out.General(msgPasswordMismatch)
		}

		if out.HasErrors() {
			return flow.Respond()
		}
		return flow.Goto(stepPatchUser)
	})

	seq.On(stepPatchUser, func(ctx context.Context) flow.Next {
		hash, err := s.store.EncryptPassword(ctx, req.NewPassword)
		if err != nil {
			return flow.Fail(err)
		}

		updated, err := s.store.SetPassword(ctx, req.ID, hash)
		if err != nil {
			return flow.Fail(err)
		}

		populated, err := s.store.Populate(ctx, updated)
		if err != nil {
			return flow.Fail(err)
		}

		out.Put("user", populated)
		// Secrets never appear in the rendered result.
		out.Put("newPassword", "")
		out.Put("confirm", "")
		return flow.Respond()
	})

	return s.run(ctx, rctx, "password", req.ID, seq)
}

// Delete runs the delete pipeline: validate → deleteAccount → deleteUser →
// response. The dependent record goes first; removals are idempotent, so a
// run that failed between the two steps is repaired by retrying the request.
func (s *Service) Delete(ctx context.Context, rctx *model.RequestContext, req DeleteRequest) (*model.Outcome, error) {
	seq := flow.New()
	out := seq.Outcome()

	seq.On(stepValidate, func(_ context.Context) flow.Next {
		if !s.guard.Allows(rctx, capability.UsersDelete) {
			out.General(msgMayNotDelete)
			return flow.Respond()
		}
		if rctx.SubjectID == req.ID {
			out.General(msgMayNotDeleteSelf)
			return flow.Respond()
		}
		return flow.Goto(stepDeleteAccount)
	})

	seq.On(stepDeleteAccount, func(ctx context.Context) flow.Next {
		if err := s.store.RemoveAccountForUser(ctx, req.ID); err != nil {
			return flow.Fail(err)
		}
		return flow.Goto(stepDeleteUser)
	})

	seq.On(stepDeleteUser, func(ctx context.Context) flow.Next {
		if err := s.store.RemoveUser(ctx, req.ID); err != nil {
			return flow.Fail(err)
		}
		return flow.Respond()
	})

	return s.run(ctx, rctx, "delete", req.ID, seq)
}

// run executes a prepared sequencer from the validate step, recording the
// span, metrics, and log line for the operation.
func (s *Service) run(ctx context.Context, rctx *model.RequestContext, operation, targetID string, seq *flow.Sequencer) (*model.Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "admin."+operation,
		trace.WithAttributes(
			observability.AttrOperation.String(operation),
			observability.AttrSubjectID.String(rctx.SubjectID),
			observability.AttrTargetID.String(targetID),
		),
	)
	defer span.End()

	start := time.Now()
	out, err := seq.Run(ctx, stepValidate)

	result := "ok"
	switch {
	case err != nil:
		result = "exception"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case out.HasErrors():
		result = "validation_failed"
	}

	if s.metrics != nil {
		s.metrics.PipelineRunsTotal.WithLabelValues(operation, result).Inc()
		s.metrics.PipelineDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}

	logger := observability.RequestLogger(ctx, s.logger)
	if err != nil {
		logger.Error("pipeline exception",
			zap.String("operation", operation),
			zap.String("target_id", targetID),
			zap.Error(err),
		)
		return nil, err
	}

	logger.Info("pipeline complete",
		zap.String("operation", operation),
		zap.String("target_id", targetID),
		zap.String("result", result),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}
