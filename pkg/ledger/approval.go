package ledger

import (
	"context"
	"database/sql"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/nickout/ettlex/pkg/model"
	"github.com/nickout/ettlex/pkg/status"
)

// ApprovalStatusPending is the initial status of a routed approval request.
const ApprovalStatusPending = "pending"

// ApprovalRequest is the structured request handed to the approval router
// when constraint ambiguity is routed instead of resolved.
type ApprovalRequest struct {
	RootEttleID string   `json:"rootEttleId"`
	ProfileRef  string   `json:"profileRef"`
	Reason      string   `json:"reason"`
	Candidates  []string `json:"candidates"`

	_ struct{}
}

// ApprovalRecord is a durable approval row.
type ApprovalRecord struct {
	Token     string
	Request   ApprovalRequest
	Status    string
	CreatedAt time.Time

	_ struct{}
}

var approvalJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// RouteApproval durably records an approval request and returns its token.
// Candidate order is preserved as given; callers pass candidates already in
// deterministic order.
func (ld *Ledger) RouteApproval(ctx context.Context, req ApprovalRequest) (string, error) {
	if req.Reason == "" {
		return "", status.ErrInvalidInput.WrapMessage("approval reason must be non-empty")
	}
	candidates, err := approvalJSON.MarshalToString(req.Candidates)
	if err != nil {
		return "", status.ErrInternal.Wrap(err)
	}
	token := model.NewApprovalToken()
	_, err = ld.db.ExecContext(ctx, `
		INSERT INTO approvals (token, root_ettle_id, profile_ref, reason, candidates, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		token, req.RootEttleID, req.ProfileRef, req.Reason, candidates,
		ApprovalStatusPending, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", status.ErrPersistence.Wrap(err)
	}
	return token, nil
}

// GetApproval returns a routed approval by token.
func (ld *Ledger) GetApproval(ctx context.Context, token string) (*ApprovalRecord, error) {
	row := ld.db.QueryRowContext(ctx, `
		SELECT token, root_ettle_id, profile_ref, reason, candidates, status, created_at
		FROM approvals WHERE token = ?`, token)
	var rec ApprovalRecord
	var candidates, createdAt string
	err := row.Scan(&rec.Token, &rec.Request.RootEttleID, &rec.Request.ProfileRef,
		&rec.Request.Reason, &candidates, &rec.Status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, status.ErrNotFound.WrapMessage("approval %q", token)
	}
	if err != nil {
		return nil, status.ErrPersistence.Wrap(err)
	}
	if err := approvalJSON.UnmarshalFromString(candidates, &rec.Request.Candidates); err != nil {
		return nil, status.ErrPersistence.Wrap(err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, status.ErrPersistence.Wrap(err)
	}
	return &rec, nil
}
