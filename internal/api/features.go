package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camnode/internal/api/models"
)

// registerFeatureRoutes registers enumeration feature access.
func (s *Server) registerFeatureRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "feature-enum-info",
		Method:      http.MethodGet,
		Path:        "/api/features/enum/{feature_name}",
		Summary:     "Get Enumeration Feature",
		Description: "List the values accepted by an enumeration feature and its current value",
		Tags:        []string{"features"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.FeatureInput) (*models.EnumInfoResponse, error) {
		return &models.EnumInfoResponse{
			Body: s.node.Gateway().FeatureEnumInfoGet(ctx, input.FeatureName),
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "feature-enum-set",
		Method:      http.MethodPut,
		Path:        "/api/features/enum/{feature_name}",
		Summary:     "Set Enumeration Feature",
		Description: "Apply an enumeration value. Rejected with an invalid operation code while streaming and an invalid value code for values outside the accepted set.",
		Tags:        []string{"features"},
		Errors:      []int{401, 422},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.EnumSetRequest) (*models.CommandResponse, error) {
		return &models.CommandResponse{
			Body: s.node.Gateway().FeatureEnumSet(ctx, input.FeatureName, input.Body.Value),
		}, nil
	})
}
