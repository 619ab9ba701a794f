package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/orgstate/internal/app"
	"github.com/neomorfeo/orgstate/internal/domain"
)

// ResourceResponse is the API representation of a resource.
type ResourceResponse struct {
	ID             string `json:"id" doc:"Unique identifier"`
	Kind           string `json:"kind" doc:"Resource kind"`
	OrganizationID string `json:"organizationId" doc:"Owning organization"`
	ScopeKey       string `json:"scopeKey,omitempty" doc:"Parent id for scoped kinds"`
	Name           string `json:"name" doc:"Display name"`
	Status         string `json:"status" doc:"Lifecycle status"`
	Flagged        bool   `json:"flagged" doc:"Holds the kind's singleton flag (is_current, is_default)"`
	CreatedAt      string `json:"createdAt" doc:"Creation timestamp (RFC 3339)"`
	UpdatedAt      string `json:"updatedAt" doc:"Last update timestamp (RFC 3339)"`
}

func toResourceResponse(r domain.Resource) ResourceResponse {
	return ResourceResponse{
		ID:             r.ID,
		Kind:           string(r.Kind),
		OrganizationID: r.OrganizationID,
		ScopeKey:       r.ScopeKey,
		Name:           r.Name,
		Status:         string(r.Status),
		Flagged:        r.Flagged,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      r.UpdatedAt.Format(time.RFC3339),
	}
}

// RejectionResponse names one id a mutation skipped.
type RejectionResponse struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// MutationResponse is returned by every write endpoint.
type MutationResponse struct {
	Status          string              `json:"status" enum:"success,error,partial" doc:"Overall outcome"`
	SucceededIDs    []string            `json:"succeededIds" doc:"Ids that were written"`
	Rejected        []RejectionResponse `json:"rejected" doc:"Ids that were skipped, with the reason"`
	Message         string              `json:"message" doc:"Human-readable summary"`
	InvalidatedTags []string            `json:"invalidatedTags" doc:"Cache tags made stale by the write"`
	Resources       []ResourceResponse  `json:"resources" doc:"Written resources as re-read after the write"`
}

func toMutationResponse(r domain.MutationResult) MutationResponse {
	resp := MutationResponse{
		Status:          r.Outcome(),
		SucceededIDs:    r.SucceededIDs,
		Rejected:        make([]RejectionResponse, len(r.Rejected)),
		Message:         r.Message(),
		InvalidatedTags: domain.TagStrings(r.InvalidatedTags),
		Resources:       make([]ResourceResponse, len(r.Resources)),
	}
	if resp.SucceededIDs == nil {
		resp.SucceededIDs = []string{}
	}
	for i, rej := range r.Rejected {
		resp.Rejected[i] = RejectionResponse{ID: rej.ID, Reason: rej.Reason}
	}
	for i, res := range r.Resources {
		resp.Resources[i] = toResourceResponse(res)
	}
	return resp
}

// --- Change Status ---

type ChangeStatusInput struct {
	OrgID string `path:"orgId" doc:"Organization ID"`
	Kind  string `path:"kind" enum:"client,product,supplier,fiscalyear,productcategory,contact,invitation" doc:"Resource kind"`
	Body  struct {
		IDs          []string `json:"ids" minItems:"1" maxItems:"500" doc:"Resources to move"`
		TargetStatus string   `json:"targetStatus" minLength:"1" doc:"Status to move them to"`
	}
}

type MutationOutput struct {
	Body MutationResponse
}

// --- Set Flag / Get / Delete ---

type ResourceInput struct {
	OrgID string `path:"orgId" doc:"Organization ID"`
	Kind  string `path:"kind" enum:"client,product,supplier,fiscalyear,productcategory,contact,invitation" doc:"Resource kind"`
	ID    string `path:"id" doc:"Resource ID"`
}

type ResourceOutput struct {
	Body ResourceResponse
}

// --- Create ---

type CreateResourceInput struct {
	OrgID string `path:"orgId" doc:"Organization ID"`
	Kind  string `path:"kind" enum:"client,product,supplier,fiscalyear,productcategory,contact,invitation" doc:"Resource kind"`
	Body  struct {
		Name     string `json:"name" minLength:"1" maxLength:"200" doc:"Display name"`
		ScopeKey string `json:"scopeKey,omitempty" maxLength:"64" doc:"Parent id, required for contacts"`
	}
}

// --- List ---

type ListResourcesInput struct {
	OrgID  string   `path:"orgId" doc:"Organization ID"`
	Kind   string   `path:"kind" enum:"client,product,supplier,fiscalyear,productcategory,contact,invitation" doc:"Resource kind"`
	Status []string `query:"status" required:"false" doc:"Filter by status, repeatable"`
	Query  string   `query:"q" required:"false" maxLength:"200" doc:"Case-insensitive name search"`
	Sort   string   `query:"sort" required:"false" enum:"name,status,created_at,updated_at" doc:"Sort field"`
	Order  string   `query:"order" required:"false" enum:"asc,desc" default:"asc" doc:"Sort order"`
	Limit  int      `query:"limit" required:"false" minimum:"0" maximum:"200" default:"50" doc:"Max results"`
	Offset int      `query:"offset" required:"false" minimum:"0" default:"0" doc:"Pagination offset"`
}

type ListResourcesOutput struct {
	Body []ResourceResponse
}

// Register adds all resource API routes to the Huma API.
func Register(api huma.API, p *app.Pipeline) {
	tags := []string{"Resources"}

	huma.Register(api, huma.Operation{
		OperationID: "change-status",
		Method:      http.MethodPost,
		Path:        "/api/v1/orgs/{orgId}/{kind}/status",
		Summary:     "Move one or many resources to a status",
		Tags:        tags,
	}, func(ctx context.Context, input *ChangeStatusInput) (*MutationOutput, error) {
		result, err := p.ChangeStatus(ctx, app.StatusChange{
			OrganizationID: input.OrgID,
			Kind:           domain.Kind(input.Kind),
			IDs:            input.Body.IDs,
			Target:         domain.Status(input.Body.TargetStatus),
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &MutationOutput{Body: toMutationResponse(result)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-flag",
		Method:      http.MethodPost,
		Path:        "/api/v1/orgs/{orgId}/{kind}/{id}/flag",
		Summary:     "Make a resource the holder of its kind's singleton flag",
		Tags:        tags,
	}, func(ctx context.Context, input *ResourceInput) (*MutationOutput, error) {
		result, err := p.SetFlag(ctx, refOf(input))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &MutationOutput{Body: toMutationResponse(result)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-resource",
		Method:        http.MethodPost,
		Path:          "/api/v1/orgs/{orgId}/{kind}",
		Summary:       "Create a resource in its initial status",
		Tags:          tags,
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateResourceInput) (*MutationOutput, error) {
		result, err := p.Create(ctx, app.CreateRequest{
			OrganizationID: input.OrgID,
			Kind:           domain.Kind(input.Kind),
			Name:           input.Body.Name,
			ScopeKey:       input.Body.ScopeKey,
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &MutationOutput{Body: toMutationResponse(result)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-resource",
		Method:      http.MethodGet,
		Path:        "/api/v1/orgs/{orgId}/{kind}/{id}",
		Summary:     "Get a resource by ID",
		Tags:        tags,
	}, func(ctx context.Context, input *ResourceInput) (*ResourceOutput, error) {
		res, err := p.Get(ctx, refOf(input))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ResourceOutput{Body: toResourceResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-resources",
		Method:      http.MethodGet,
		Path:        "/api/v1/orgs/{orgId}/{kind}",
		Summary:     "List resources of a kind",
		Tags:        tags,
	}, func(ctx context.Context, input *ListResourcesInput) (*ListResourcesOutput, error) {
		req := app.ListRequest{
			OrganizationID: input.OrgID,
			Kind:           domain.Kind(input.Kind),
			Search:         input.Query,
			SortBy:         domain.SortField(input.Sort),
			Descending:     input.Order == "desc",
			Limit:          input.Limit,
			Offset:         input.Offset,
		}
		for _, raw := range input.Status {
			for s := range strings.SplitSeq(raw, ",") {
				if s = strings.TrimSpace(s); s != "" {
					req.Statuses = append(req.Statuses, domain.Status(s))
				}
			}
		}

		resources, err := p.List(ctx, req)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]ResourceResponse, len(resources))
		for i, r := range resources {
			resp[i] = toResourceResponse(r)
		}
		return &ListResourcesOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-resource",
		Method:      http.MethodDelete,
		Path:        "/api/v1/orgs/{orgId}/{kind}/{id}",
		Summary:     "Hard-delete a resource",
		Tags:        tags,
	}, func(ctx context.Context, input *ResourceInput) (*MutationOutput, error) {
		result, err := p.Delete(ctx, refOf(input))
		if err != nil {
			return nil, toHumaError(err)
		}
		return &MutationOutput{Body: toMutationResponse(result)}, nil
	})
}

func refOf(input *ResourceInput) app.ResourceRef {
	return app.ResourceRef{
		OrganizationID: input.OrgID,
		Kind:           domain.Kind(input.Kind),
		ID:             input.ID,
	}
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	switch domain.Classify(err) {
	case domain.KindUnauthenticated:
		return huma.Error401Unauthorized("authentication required")
	case domain.KindForbidden:
		return huma.Error403Forbidden("no access to organization")
	case domain.KindValidation, domain.KindGuardRejected:
		return huma.Error422UnprocessableEntity(reason(err))
	case domain.KindNotFound:
		return huma.Error404NotFound(reason(err))
	case domain.KindConflict:
		return huma.Error409Conflict(reason(err))
	case domain.KindTransient:
		return huma.Error503ServiceUnavailable("temporarily unavailable, retry")
	default:
		return huma.Error500InternalServerError("internal server error")
	}
}

// reason strips the pipeline stage prefix so clients see the domain message.
func reason(err error) string {
	var stageErr *app.StageError
	if errors.As(err, &stageErr) {
		return stageErr.Err.Error()
	}
	return err.Error()
}
