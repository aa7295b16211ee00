package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	formsapp "github.com/formbridge/backend/internal/application/forms"
	"github.com/formbridge/backend/internal/domain/crm"
	"github.com/formbridge/backend/internal/domain/forms"
	"github.com/formbridge/backend/internal/domain/session"
	"github.com/formbridge/backend/internal/domain/shared"
	"github.com/formbridge/backend/internal/domain/submission"
	infracrm "github.com/formbridge/backend/internal/infrastructure/crm"
)

// Tracking object field names in the record-keeping system
const (
	FieldContextID      = "ContextId__c"
	FieldFormID         = "FormId__c"
	FieldSessionID      = "SessionId__c"
	FieldSubmissionData = "SubmissionData__c"
	FieldSubmittedAt    = "SubmittedAt__c"
)

// Relationship object field names
const (
	FieldSubmissionRef = "Submission__c"
	FieldRelatedID     = "RelatedId__c"
	FieldRelatedType   = "RelatedType__c"
)

// auditTimeout bounds the fire-and-forget outcome write
const auditTimeout = 10 * time.Second

// ConnectionProvider resolves an authenticated client for the
// record-keeping system
type ConnectionProvider interface {
	Resolve(ctx context.Context, contextID string) (crm.Client, error)
}

// FormResolver fetches a form's definition and mapping configuration
type FormResolver interface {
	Fetch(ctx context.Context, formID string, client crm.Client) (*formsapp.Resolution, error)
}

// Config holds the orchestrator's object type bindings
type Config struct {
	TrackingObject     string
	RelationshipObject string
	VerifyCreates      bool
}

// Request is one form submission
type Request struct {
	ContextID string
	FormData  map[string]any
}

// Service orchestrates the submission saga: business record creation,
// tracking record creation with de-duplication, then relationship records.
// The external system is transactionless, so each step carries its own
// failure policy instead of atomic rollback.
type Service struct {
	provider ConnectionProvider
	resolver FormResolver
	recorder submission.Recorder
	cfg      Config
	logger   *zap.Logger
}

// NewService creates a submission orchestrator
func NewService(provider ConnectionProvider, resolver FormResolver, recorder submission.Recorder, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		provider: provider,
		resolver: resolver,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
	}
}

// Submit runs the saga for one submission. A retried submission with the
// same context id resolves to the existing tracking record rather than
// creating a second one.
func (s *Service) Submit(ctx context.Context, formID string, req Request) (*submission.Result, error) {
	start := time.Now()

	contextID, sessionID, err := s.resolveContext(formID, req.ContextID)
	if err != nil {
		s.audit(contextID, formID, sessionID, nil, err, start)
		return nil, err
	}

	result, err := s.run(ctx, formID, contextID, sessionID, req.FormData)
	if result != nil {
		result.DurationMs = time.Since(start).Milliseconds()
	}
	s.audit(contextID, formID, sessionID, result, err, start)
	return result, err
}

func (s *Service) resolveContext(formID, rawContextID string) (contextID, sessionID string, err error) {
	if rawContextID == "" {
		// Anonymous submission: synthesize a context so the tracking record
		// still has a unique key. De-duplication is meaningless without a
		// caller-supplied id.
		sessionID = uuid.NewString()
		return session.NewContextID(formID, sessionID).String(), sessionID, nil
	}
	id, err := session.ValidateContextID(rawContextID, formID)
	if err != nil {
		return rawContextID, "", err
	}
	return rawContextID, id.SessionID, nil
}

func (s *Service) run(ctx context.Context, formID, contextID, sessionID string, formData map[string]any) (*submission.Result, error) {
	client, err := s.provider.Resolve(ctx, contextID)
	if err != nil {
		return nil, err
	}

	res, err := s.resolver.Fetch(ctx, formID, client)
	if err != nil {
		return nil, err
	}
	if res.MappingRulesBroken() {
		return nil, res.ConfigurationError()
	}
	rules := res.Definition.MappingRules

	var warnings []string

	// Step A: business record. Strict before the call (nothing useful could
	// be created from an empty record), lenient during it (tracking the
	// submission outweighs a downstream integration's transient failure).
	businessRefs, stepErr := s.createBusinessRecord(ctx, client, rules, formData, &warnings)
	if stepErr != nil {
		return nil, stepErr
	}

	// Step B: tracking record, always. This is the durable audit-of-record
	// and the idempotency anchor.
	trackingID, isDuplicate, err := s.ensureTrackingRecord(ctx, client, formID, contextID, sessionID, formData)
	if err != nil {
		return nil, err
	}

	// Step C: relationships, only when both sides exist. Never fatal.
	relationshipIDs := s.linkRecords(ctx, client, trackingID, businessRefs, isDuplicate, &warnings)

	return &submission.Result{
		TrackingID:        trackingID,
		BusinessRecordIDs: businessRefs,
		RelationshipIDs:   relationshipIDs,
		IsDuplicate:       isDuplicate,
		Warning:           strings.Join(warnings, "; "),
	}, nil
}

// createBusinessRecord evaluates the mapping and attempts the business
// record create. A failed create downgrades to a warning so tracking still
// occurs; an empty mapped record aborts before any side effect.
func (s *Service) createBusinessRecord(ctx context.Context, client crm.Client, rules *forms.MappingRules, formData map[string]any, warnings *[]string) ([]submission.BusinessRecordRef, error) {
	if rules == nil || rules.TargetObjectType == "" || rules.TargetObjectType == s.cfg.TrackingObject {
		return nil, nil
	}

	eval := forms.Evaluate(formData, rules)
	if len(eval.Record) == 0 {
		return nil, shared.NewConfigurationError(
			fmt.Sprintf("mapping for object type %q produced an empty record", rules.TargetObjectType))
	}
	if len(eval.Unmapped) > 0 {
		s.logger.Debug("unmapped submission fields",
			zap.String("object_type", rules.TargetObjectType),
			zap.Strings("fields", eval.Unmapped))
	}

	created, err := client.Create(ctx, rules.TargetObjectType, eval.Record)
	switch {
	case err != nil:
		s.logger.Warn("business record creation failed",
			zap.String("object_type", rules.TargetObjectType), zap.Error(err))
		*warnings = append(*warnings,
			fmt.Sprintf("business record creation failed: %v", err))
		return nil, nil
	case !created.Success || created.ID == "":
		detail := createErrorDetail(created)
		s.logger.Warn("business record creation rejected",
			zap.String("object_type", rules.TargetObjectType), zap.String("detail", detail))
		*warnings = append(*warnings,
			fmt.Sprintf("business record creation failed: %s", detail))
		return nil, nil
	}

	if s.cfg.VerifyCreates {
		go s.verifyCreate(rules.TargetObjectType, created.ID, eval.Record)
	}

	return []submission.BusinessRecordRef{{ID: created.ID, ObjectType: rules.TargetObjectType}}, nil
}

// ensureTrackingRecord finds or creates the tracking record for the context
// id. The external system enforces uniqueness on the context id field; a
// create that loses the race falls back to re-query instead of erroring.
func (s *Service) ensureTrackingRecord(ctx context.Context, client crm.Client, formID, contextID, sessionID string, formData map[string]any) (string, bool, error) {
	if id := s.findTrackingRecord(ctx, client, contextID); id != "" {
		return id, true, nil
	}

	payload, err := json.Marshal(formData)
	if err != nil {
		return "", false, shared.NewInternalError(fmt.Sprintf("serializing form data: %v", err))
	}

	created, err := client.Create(ctx, s.cfg.TrackingObject, map[string]any{
		FieldContextID:      contextID,
		FieldFormID:         formID,
		FieldSessionID:      sessionID,
		FieldSubmissionData: string(payload),
		FieldSubmittedAt:    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		if crm.IsUniqueViolation(err) {
			// Lost the create race; the winner's record is ours to reuse
			if id := s.findTrackingRecord(ctx, client, contextID); id != "" {
				return id, true, nil
			}
		}
		return "", false, err
	}
	if !created.Success || created.ID == "" {
		if isDuplicateCreateResult(created) {
			if id := s.findTrackingRecord(ctx, client, contextID); id != "" {
				return id, true, nil
			}
		}
		return "", false, crm.NewAPIError(crm.ErrorVariantCreate, "",
			fmt.Sprintf("tracking record creation failed: %s", createErrorDetail(created)), 0)
	}
	return created.ID, false, nil
}

// findTrackingRecord queries for an existing tracking record by context id.
// Query failures are logged and treated as not-found; the create path's
// uniqueness enforcement is the backstop.
func (s *Service) findTrackingRecord(ctx context.Context, client crm.Client, contextID string) string {
	query := fmt.Sprintf("SELECT Id, %s FROM %s WHERE %s = '%s' LIMIT 1",
		FieldContextID, s.cfg.TrackingObject, FieldContextID, infracrm.QuoteLiteral(contextID))
	records, err := client.Query(ctx, query)
	if err != nil {
		s.logger.Warn("tracking record lookup failed",
			zap.String("context_id", contextID), zap.Error(err))
		return ""
	}
	if len(records) == 0 {
		return ""
	}
	return records[0].ID()
}

// linkRecords creates one relationship record per business record, reusing
// existing links on duplicate submissions. Failures surface only as a
// warning on the response; steps A and B are never rolled back.
func (s *Service) linkRecords(ctx context.Context, client crm.Client, trackingID string, businessRefs []submission.BusinessRecordRef, isDuplicate bool, warnings *[]string) []string {
	if trackingID == "" || len(businessRefs) == 0 {
		return nil
	}

	if isDuplicate {
		if existing := s.findRelationships(ctx, client, trackingID); len(existing) > 0 {
			return existing
		}
	}

	var ids []string
	for _, ref := range businessRefs {
		created, err := client.Create(ctx, s.cfg.RelationshipObject, map[string]any{
			FieldSubmissionRef: trackingID,
			FieldRelatedID:     ref.ID,
			FieldRelatedType:   ref.ObjectType,
		})
		if err != nil {
			s.logger.Warn("relationship record creation failed",
				zap.String("tracking_id", trackingID),
				zap.String("related_id", ref.ID),
				zap.Error(err))
			*warnings = append(*warnings,
				fmt.Sprintf("relationship record creation failed for %s: %v", ref.ID, err))
			continue
		}
		if !created.Success || created.ID == "" {
			detail := createErrorDetail(created)
			s.logger.Warn("relationship record creation rejected",
				zap.String("tracking_id", trackingID),
				zap.String("detail", detail))
			*warnings = append(*warnings,
				fmt.Sprintf("relationship record creation failed for %s: %s", ref.ID, detail))
			continue
		}
		ids = append(ids, created.ID)
	}
	return ids
}

func (s *Service) findRelationships(ctx context.Context, client crm.Client, trackingID string) []string {
	query := fmt.Sprintf("SELECT Id FROM %s WHERE %s = '%s'",
		s.cfg.RelationshipObject, FieldSubmissionRef, infracrm.QuoteLiteral(trackingID))
	records, err := client.Query(ctx, query)
	if err != nil {
		s.logger.Warn("relationship lookup failed",
			zap.String("tracking_id", trackingID), zap.Error(err))
		return nil
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if id := rec.ID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// verifyCreate is a best-effort read-after-write consistency check.
// Mismatches are logged only; correctness never depends on it.
func (s *Service) verifyCreate(objectType, recordID string, expected map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()

	client, err := s.provider.Resolve(ctx, "")
	if err != nil {
		return
	}

	fields := make([]string, 0, len(expected)+1)
	fields = append(fields, "Id")
	for f := range expected {
		fields = append(fields, f)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE Id = '%s'",
		strings.Join(fields, ", "), objectType, infracrm.QuoteLiteral(recordID))

	records, err := client.Query(ctx, query)
	if err != nil || len(records) == 0 {
		s.logger.Warn("created record not readable on verification",
			zap.String("object_type", objectType),
			zap.String("record_id", recordID),
			zap.Error(err))
		return
	}
	for field, want := range expected {
		if got, ok := records[0][field]; ok && fmt.Sprint(got) != fmt.Sprint(want) {
			s.logger.Warn("created record field mismatch on verification",
				zap.String("object_type", objectType),
				zap.String("record_id", recordID),
				zap.String("field", field))
		}
	}
}

// audit hands the outcome to the recorder without blocking or failing the
// response
func (s *Service) audit(contextID, formID, sessionID string, result *submission.Result, err error, start time.Time) {
	if s.recorder == nil {
		return
	}
	outcome := submission.Outcome{
		ContextID:   contextID,
		FormID:      formID,
		SessionID:   sessionID,
		Success:     err == nil,
		DurationMs:  time.Since(start).Milliseconds(),
		SubmittedAt: start,
	}
	if result != nil {
		outcome.TrackingID = result.TrackingID
		outcome.IsDuplicate = result.IsDuplicate
		outcome.Warning = result.Warning
	}
	if err != nil {
		outcome.Error = err.Error()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		s.recorder.RecordOutcome(ctx, outcome)
	}()
}

func createErrorDetail(result *crm.CreateResult) string {
	if result == nil {
		return "no result returned"
	}
	if len(result.Errors) == 0 {
		if result.ID == "" {
			return "create reported no record id"
		}
		return "create reported failure"
	}
	parts := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.StatusCode, e.Message))
	}
	return strings.Join(parts, "; ")
}

func isDuplicateCreateResult(result *crm.CreateResult) bool {
	if result == nil {
		return false
	}
	for _, e := range result.Errors {
		switch e.StatusCode {
		case "DUPLICATE_VALUE", "DUPLICATE_EXTERNAL_ID", "DUPLICATES_DETECTED":
			return true
		}
	}
	return false
}
