package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/commissionhub/internal/catalog/classifier"
	ruledomain "github.com/smallbiznis/commissionhub/internal/rule/domain"
)

type resolveRuleRequest struct {
	Name        string   `json:"name"`
	ProductRef  string   `json:"product_ref"`
	ProductType string   `json:"product_type"`
	Tags        []string `json:"tags"`
}

type resolveRuleResponse struct {
	Classification ruledomain.Classification `json:"classification"`
	Resolution     ruledomain.Resolution     `json:"resolution"`
	Matched        bool                      `json:"matched"`
}

// ResolveRule previews which rule a product would earn under the current
// rule set. A line item shape is classified first; an explicit product type
// skips classification.
func (s *Server) ResolveRule(c *gin.Context) {
	var req resolveRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	var cls ruledomain.Classification
	switch {
	case strings.TrimSpace(req.ProductType) != "" || len(req.Tags) > 0:
		cls = ruledomain.Classification{
			ProductType: strings.TrimSpace(req.ProductType),
			Tags:        req.Tags,
			Source:      "request",
		}
	case strings.TrimSpace(req.Name) != "" || strings.TrimSpace(req.ProductRef) != "":
		cls = s.classifier.Classify(ctx, classifier.Item{
			Name:       strings.TrimSpace(req.Name),
			ProductRef: strings.TrimSpace(req.ProductRef),
		})
	default:
		AbortWithError(c, newValidationError("product_type", "required", "product_type or name is required"))
		return
	}

	rules, err := s.rules.Load(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	res := rules.Resolve(cls)

	c.JSON(http.StatusOK, gin.H{"data": resolveRuleResponse{
		Classification: cls,
		Resolution:     res,
		Matched:        res.Matched(),
	}})
}
