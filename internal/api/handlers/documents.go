package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"inkwell/internal/core"
	"inkwell/internal/external"
	"inkwell/internal/types"
)

// GenerationService produces a document and reports its token cost.
// Implemented by external.GeneratorClient.
type GenerationService interface {
	Generate(ctx context.Context, req external.GenerateRequest) (*types.GenerationResult, error)
}

// GenerateDocumentRequest is the request body for POST /v1/documents/generate.
type GenerateDocumentRequest struct {
	Prompt     string `json:"prompt" validate:"required,min=1,max=20000"`
	TemplateID string `json:"template_id,omitempty" validate:"omitempty,max=128"`
	MaxTokens  int64  `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
}

// GenerateDocumentResponse is the response body for a successful generation:
// the document reference plus the post-charge entitlement so clients can
// refresh quota displays.
type GenerateDocumentResponse struct {
	Document    *types.GenerationResult    `json:"document"`
	Entitlement *types.EntitlementSnapshot `json:"entitlement"`
}

// DocumentsHandler orchestrates the generate-then-charge flow: entitlement
// pre-check, document generation, then an atomic usage charge for the
// reported token cost.
//
// Charging happens after generation succeeds, and a failed generation is
// never charged. The cost of that ordering is the hard-cap race below; the
// recorder's atomic charge closes it.
type DocumentsHandler struct {
	generator   GenerationService
	entitlement EntitlementReader
	charger     UsageCharger
	validator   *core.Validator
	logger      *slog.Logger
}

func NewDocumentsHandler(
	gen GenerationService,
	ent EntitlementReader,
	charger UsageCharger,
	v *core.Validator,
	l *slog.Logger,
) *DocumentsHandler {
	if l == nil {
		l = slog.Default()
	}
	return &DocumentsHandler{
		generator:   gen,
		entitlement: ent,
		charger:     charger,
		validator:   v,
		logger:      l,
	}
}

// RegisterRoutes mounts the document generation endpoint.
func (h *DocumentsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/documents/generate", h.GenerateDocument)
}

// GenerateDocument handles POST /v1/documents/generate.
//
// The entitlement pre-check avoids burning generation work for accounts that
// are inactive or already out of tokens, but it is advisory: the charge
// after generation is where the quota is actually enforced. If a concurrent
// charge exhausts a hard-cap quota between the pre-check and the charge,
// the charge fails, the produced document is discarded, and the client sees
// the same QuotaExceededError it would have seen up front.
func (h *DocumentsHandler) GenerateDocument(w http.ResponseWriter, r *http.Request) {
	accountID, ok := types.GetAccountID(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthAccountMissing,
			"account identity is required",
			nil,
		))
		return
	}

	var req GenerateDocumentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	snap, err := h.entitlement.Snapshot(r.Context(), accountID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !snap.IsActive {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeSubscriptionInactive,
			"subscription is not active; renew to continue generating documents",
			nil,
		))
		return
	}
	if snap.TokensRemaining <= 0 {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeQuotaExceeded,
			"token quota is exhausted for the current cycle",
			nil,
			map[string]any{
				"tokens_used":  snap.TokensUsed,
				"tokens_limit": snap.TokensLimit,
			},
		))
		return
	}

	result, err := h.generator.Generate(r.Context(), external.GenerateRequest{
		AccountID:  accountID,
		Prompt:     req.Prompt,
		TemplateID: req.TemplateID,
		MaxTokens:  req.MaxTokens,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	postCharge, err := h.charger.Charge(r.Context(), accountID, result.TokensConsumed)
	if err != nil {
		// The document was produced but cannot be paid for. Discard it and
		// surface the rejection; the generated artifact is not referenced
		// anywhere yet, so dropping the reference is enough.
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeQuotaExceeded {
			h.logger.WarnContext(r.Context(), "discarding generated document after quota rejection",
				"account_id", accountID,
				"document_id", result.DocumentID,
				"tokens_consumed", result.TokensConsumed,
			)
		}
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: GenerateDocumentResponse{
		Document:    result,
		Entitlement: postCharge,
	}})
}
