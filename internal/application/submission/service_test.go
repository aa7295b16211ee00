package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	formsapp "github.com/formbridge/backend/internal/application/forms"
	"github.com/formbridge/backend/internal/domain/crm"
	"github.com/formbridge/backend/internal/domain/forms"
	"github.com/formbridge/backend/internal/domain/shared"
	"github.com/formbridge/backend/internal/domain/submission"
)

type createCall struct {
	objectType string
	fields     map[string]any
}

// scriptedClient routes queries by object type and lets tests fail specific
// create calls
type scriptedClient struct {
	mu              sync.Mutex
	trackingRecords []crm.Record
	linkRecords     []crm.Record
	createErr       map[string]error
	createResult    map[string]*crm.CreateResult
	queryErr        error
	creates         []createCall
	nextID          int
}

func (s *scriptedClient) Describe(context.Context, string) ([]crm.Field, error) { return nil, nil }

func (s *scriptedClient) Query(_ context.Context, query string) ([]crm.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	switch {
	case strings.Contains(query, "FROM FormSubmission__c"):
		return s.trackingRecords, nil
	case strings.Contains(query, "FROM FormSubmissionLink__c"):
		return s.linkRecords, nil
	default:
		return nil, nil
	}
}

func (s *scriptedClient) Create(_ context.Context, objectType string, fields map[string]any) (*crm.CreateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates = append(s.creates, createCall{objectType: objectType, fields: fields})
	if err, ok := s.createErr[objectType]; ok {
		return nil, err
	}
	if result, ok := s.createResult[objectType]; ok {
		return result, nil
	}
	s.nextID++
	return &crm.CreateResult{Success: true, ID: fmt.Sprintf("%s-%03d", objectType, s.nextID)}, nil
}

func (s *scriptedClient) createsFor(objectType string) []createCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []createCall
	for _, call := range s.creates {
		if call.objectType == objectType {
			out = append(out, call)
		}
	}
	return out
}

type fixedProvider struct{ client crm.Client }

func (p fixedProvider) Resolve(context.Context, string) (crm.Client, error) { return p.client, nil }

type fixedResolver struct {
	res *formsapp.Resolution
	err error
}

func (r fixedResolver) Fetch(context.Context, string, crm.Client) (*formsapp.Resolution, error) {
	return r.res, r.err
}

// channelRecorder delivers outcomes so tests can await the fire-and-forget
// goroutine
type channelRecorder struct{ ch chan submission.Outcome }

func newChannelRecorder() *channelRecorder {
	return &channelRecorder{ch: make(chan submission.Outcome, 4)}
}

func (r *channelRecorder) RecordOutcome(_ context.Context, outcome submission.Outcome) {
	r.ch <- outcome
}

func (r *channelRecorder) await(t *testing.T) submission.Outcome {
	t.Helper()
	select {
	case outcome := <-r.ch:
		return outcome
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome recorded")
		return submission.Outcome{}
	}
}

func contactResolution() *formsapp.Resolution {
	return &formsapp.Resolution{
		Definition: &forms.Definition{
			FormID: "contact-form",
			Title:  "Contact Us",
			Active: true,
			MappingRules: &forms.MappingRules{
				TargetObjectType: "Contact",
				FieldMappings: map[string]string{
					"email":    "Email",
					"fullName": "LastName",
				},
			},
		},
		ParseErrors: map[string]string{},
	}
}

func newTestService(client crm.Client, res *formsapp.Resolution, recorder submission.Recorder) *Service {
	return NewService(
		fixedProvider{client: client},
		fixedResolver{res: res},
		recorder,
		Config{
			TrackingObject:     "FormSubmission__c",
			RelationshipObject: "FormSubmissionLink__c",
		},
		zap.NewNop(),
	)
}

func validContextID() string {
	return "contact-form:" + uuid.NewString()
}

func TestSubmitHappyPath(t *testing.T) {
	client := &scriptedClient{}
	recorder := newChannelRecorder()
	svc := newTestService(client, contactResolution(), recorder)

	contextID := validContextID()
	result, err := svc.Submit(context.Background(), "contact-form", Request{
		ContextID: contextID,
		FormData:  map[string]any{"email": "ada@example.com", "fullName": "Lovelace"},
	})
	require.NoError(t, err)

	require.Len(t, result.BusinessRecordIDs, 1)
	assert.Equal(t, "Contact", result.BusinessRecordIDs[0].ObjectType)
	assert.NotEmpty(t, result.TrackingID)
	assert.Len(t, result.RelationshipIDs, 1)
	assert.False(t, result.IsDuplicate)
	assert.Empty(t, result.Warning)

	// Business record carries the mapped fields
	contactCreates := client.createsFor("Contact")
	require.Len(t, contactCreates, 1)
	assert.Equal(t, "ada@example.com", contactCreates[0].fields["Email"])

	// Tracking record carries the context key and the raw payload
	trackingCreates := client.createsFor("FormSubmission__c")
	require.Len(t, trackingCreates, 1)
	assert.Equal(t, contextID, trackingCreates[0].fields[FieldContextID])
	assert.Equal(t, "contact-form", trackingCreates[0].fields[FieldFormID])
	assert.Contains(t, trackingCreates[0].fields[FieldSubmissionData], "ada@example.com")

	// Relationship joins the two
	linkCreates := client.createsFor("FormSubmissionLink__c")
	require.Len(t, linkCreates, 1)
	assert.Equal(t, result.TrackingID, linkCreates[0].fields[FieldSubmissionRef])
	assert.Equal(t, result.BusinessRecordIDs[0].ID, linkCreates[0].fields[FieldRelatedID])
	assert.Equal(t, "Contact", linkCreates[0].fields[FieldRelatedType])

	outcome := recorder.await(t)
	assert.True(t, outcome.Success)
	assert.Equal(t, contextID, outcome.ContextID)
}

func TestSubmitDuplicateReusesTrackingRecord(t *testing.T) {
	client := &scriptedClient{
		trackingRecords: []crm.Record{{"Id": "existing-tracking"}},
		linkRecords:     []crm.Record{{"Id": "existing-link"}},
	}
	svc := newTestService(client, contactResolution(), nil)

	result, err := svc.Submit(context.Background(), "contact-form", Request{
		ContextID: validContextID(),
		FormData:  map[string]any{"email": "ada@example.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, "existing-tracking", result.TrackingID)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, []string{"existing-link"}, result.RelationshipIDs)
	assert.Empty(t, client.createsFor("FormSubmission__c"), "no second tracking record")
	assert.Empty(t, client.createsFor("FormSubmissionLink__c"), "existing links reused")
}

func TestSubmitUniqueViolationFallsBackToRequery(t *testing.T) {
	// The first tracking lookup misses, the create loses the uniqueness race,
	// and the requery finds the winner's record
	client := &raceClient{
		scriptedClient: scriptedClient{
			createErr: map[string]error{
				"FormSubmission__c": crm.NewAPIError(crm.ErrorVariantCreate,
					"DUPLICATE_VALUE", "duplicate value found: ContextId__c", 400),
			},
		},
		winner: crm.Record{"Id": "winner-tracking"},
	}
	svc := newTestService(client, contactResolution(), nil)

	result, err := svc.Submit(context.Background(), "contact-form", Request{
		ContextID: validContextID(),
		FormData:  map[string]any{"email": "ada@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "winner-tracking", result.TrackingID)
	assert.True(t, result.IsDuplicate)
}

// raceClient misses the first tracking lookup and serves the winner's record
// afterwards, emulating a lost create race
type raceClient struct {
	scriptedClient
	winner  crm.Record
	queried bool
}

func (r *raceClient) Query(ctx context.Context, query string) ([]crm.Record, error) {
	if strings.Contains(query, "FROM FormSubmission__c") {
		r.mu.Lock()
		first := !r.queried
		r.queried = true
		r.mu.Unlock()
		if first {
			return nil, nil
		}
		return []crm.Record{r.winner}, nil
	}
	return r.scriptedClient.Query(ctx, query)
}

func TestSubmitBusinessRecordFailureIsOpen(t *testing.T) {
	client := &scriptedClient{
		createErr: map[string]error{
			"Contact": crm.NewAPIError(crm.ErrorVariantCreate,
				"REQUIRED_FIELD_MISSING", "missing required field", 400),
		},
	}
	recorder := newChannelRecorder()
	svc := newTestService(client, contactResolution(), recorder)

	result, err := svc.Submit(context.Background(), "contact-form", Request{
		ContextID: validContextID(),
		FormData:  map[string]any{"email": "ada@example.com"},
	})
	require.NoError(t, err, "a failed business record must not fail the submission")

	assert.Empty(t, result.BusinessRecordIDs)
	assert.NotEmpty(t, result.TrackingID, "tracking still happens")
	assert.Empty(t, result.RelationshipIDs, "no relationship without a business record")
	assert.Contains(t, result.Warning, "business record creation failed")
	assert.Empty(t, client.createsFor("FormSubmissionLink__c"))

	outcome := recorder.await(t)
	assert.True(t, outcome.Success)
	assert.NotEmpty(t, outcome.Warning)
}

func TestSubmitEmptyMappedRecordAborts(t *testing.T) {
	res := contactResolution()
	res.Definition.MappingRules.FieldMappings = map[string]string{"unrelated": "Field__c"}

	client := &scriptedClient{}
	svc := newTestService(client, res, nil)

	_, err := svc.Submit(context.Background(), "contact-form", Request{
		ContextID: validContextID(),
		FormData:  map[string]any{"email": "ada@example.com"},
	})
	require.Error(t, err)

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, shared.CodeConfiguration, domainErr.Code)
	assert.Empty(t, client.creates, "nothing is created when the mapping yields nothing")
}

func TestSubmitSkipsBusinessStepWithoutTargetType(t *testing.T) {
	res := contactResolution()
	res.Definition.MappingRules.TargetObjectType = ""

	client := &scriptedClient{}
	svc := newTestService(client, res, nil)

	result, err := svc.Submit(context.Background(), "contact-form", Request{
		ContextID: validContextID(),
		FormData:  map[string]any{"email": "ada@example.com"},
	})
	require.NoError(t, err)
	assert.Empty(t, result.BusinessRecordIDs)
	assert.NotEmpty(t, result.TrackingID)
	assert.Empty(t, client.createsFor("Contact"))
}

func TestSubmitSkipsBusinessStepForTrackingTarget(t *testing.T) {
	res := contactResolution()
	res.Definition.MappingRules.TargetObjectType = "FormSubmission__c"

	client := &scriptedClient{}
	svc := newTestService(client, res, nil)

	result, err := svc.Submit(context.Background(), "contact-form", Request{
		ContextID: validContextID(),
		FormData:  map[string]any{"email": "ada@example.com"},
	})
	require.NoError(t, err)
	assert.Empty(t, result.BusinessRecordIDs)
	require.Len(t, client.createsFor("FormSubmission__c"), 1, "only the tracking create")
}

func TestSubmitRelationshipFailureIsNonFatal(t *testing.T) {
	client := &scriptedClient{
		createErr: map[string]error{
			"FormSubmissionLink__c": errors.New("link create failed"),
		},
	}
	svc := newTestService(client, contactResolution(), nil)

	result, err := svc.Submit(context.Background(), "contact-form", Request{
		ContextID: validContextID(),
		FormData:  map[string]any{"email": "ada@example.com"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.TrackingID)
	require.Len(t, result.BusinessRecordIDs, 1)
	assert.Empty(t, result.RelationshipIDs)
	assert.Contains(t, result.Warning, "relationship record creation failed")
}

func TestSubmitBrokenMappingRules(t *testing.T) {
	res := &formsapp.Resolution{
		Definition:  &forms.Definition{FormID: "contact-form"},
		ParseErrors: map[string]string{formsapp.FieldMappingRules: "unexpected token"},
	}
	client := &scriptedClient{}
	svc := newTestService(client, res, nil)

	_, err := svc.Submit(context.Background(), "contact-form", Request{
		ContextID: validContextID(),
		FormData:  map[string]any{"email": "a@b.c"},
	})
	require.Error(t, err)

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, shared.CodeConfiguration, domainErr.Code)
}

func TestSubmitInvalidContextID(t *testing.T) {
	recorder := newChannelRecorder()
	svc := newTestService(&scriptedClient{}, contactResolution(), recorder)

	tests := []string{
		"no-separator",
		"wrong-form:" + uuid.NewString(),
		"contact-form:not-a-uuid",
		"a:b:c",
	}
	for _, raw := range tests {
		_, err := svc.Submit(context.Background(), "contact-form", Request{
			ContextID: raw,
			FormData:  map[string]any{"email": "a@b.c"},
		})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr, raw)
		assert.Equal(t, shared.CodeValidation, domainErr.Code, raw)

		outcome := recorder.await(t)
		assert.False(t, outcome.Success)
		assert.NotEmpty(t, outcome.Error)
	}
}

func TestSubmitSynthesizesMissingContextID(t *testing.T) {
	client := &scriptedClient{}
	svc := newTestService(client, contactResolution(), nil)

	_, err := svc.Submit(context.Background(), "contact-form", Request{
		FormData: map[string]any{"email": "ada@example.com"},
	})
	require.NoError(t, err)

	trackingCreates := client.createsFor("FormSubmission__c")
	require.Len(t, trackingCreates, 1)
	contextID, _ := trackingCreates[0].fields[FieldContextID].(string)
	parts := strings.SplitN(contextID, ":", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, "contact-form", parts[0])
	assert.NotEmpty(t, parts[1])
}

func TestSubmitConnectionFailure(t *testing.T) {
	svc := NewService(
		failingProvider{err: shared.NewConnectionError("no shared connection configured")},
		fixedResolver{res: contactResolution()},
		nil,
		Config{TrackingObject: "FormSubmission__c", RelationshipObject: "FormSubmissionLink__c"},
		zap.NewNop(),
	)

	_, err := svc.Submit(context.Background(), "contact-form", Request{
		ContextID: validContextID(),
		FormData:  map[string]any{"email": "a@b.c"},
	})
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, shared.CodeConnection, domainErr.Code)
}

type failingProvider struct{ err error }

func (p failingProvider) Resolve(context.Context, string) (crm.Client, error) { return nil, p.err }
