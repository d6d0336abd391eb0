package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/claimgate/internal/common"
	"github.com/dmitrijs2005/claimgate/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const (
	statusSuccess  = "success"
	statusRejected = "rejected"
)

// decode reads a JSON body into v and validates it.
func (h *handlers) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", common.ErrValidation, err)
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: field %s failed %q", common.ErrValidation, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return nil
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (h *handlers) reputation(w http.ResponseWriter, r *http.Request) {
	domain := strings.TrimSpace(r.URL.Query().Get("domain"))
	if domain == "" {
		writeError(w, fmt.Errorf("%w: domain is required", common.ErrValidation))
		return
	}
	writeJSON(w, http.StatusOK, reputationResponse{Status: h.deps.Reputation.Status(domain), Domain: domain})
}

func (h *handlers) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.deps.Verifier.Verify(r.Context(), AccountID(r.Context()), req.Claim, req.Evidence)
	if err != nil {
		writeError(w, err)
		return
	}

	sources := res.Sources
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, verifyResponse{
		Result:     res.Result,
		Confidence: res.Confidence,
		Claim:      res.Claim,
		Evidence:   res.Evidence,
		Sources:    sources,
	})
}

func (h *handlers) credits(w http.ResponseWriter, r *http.Request) {
	b, err := h.deps.Balances.Balance(r.Context(), AccountID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Credits: b})
}

func (h *handlers) memoryAdd(w http.ResponseWriter, r *http.Request) {
	var req memoryAddRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	out, err := h.deps.Memory.Add(r.Context(), AccountID(r.Context()), req.Content, req.Tags)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored(out))
}

func (h *handlers) memoryCapture(w http.ResponseWriter, r *http.Request) {
	var req memoryCaptureRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	out, err := h.deps.Memory.Capture(r.Context(), AccountID(r.Context()), req.URL, req.Verify, req.Tags)
	if err != nil {
		writeError(w, err)
		return
	}
	if out.Rejected != nil {
		writeJSON(w, http.StatusOK, rejected(out.Rejected))
		return
	}

	resp := stored(out.Stored)
	resp.Title = out.Title
	resp.Verification = out.Verification
	resp.SnapshotURL = out.SnapshotURL
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) memorySearch(w http.ResponseWriter, r *http.Request) {
	var req memorySearchRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	matches, err := h.deps.Memory.Search(r.Context(), AccountID(r.Context()), req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: matches})
}

func (h *handlers) memoryVerified(w http.ResponseWriter, r *http.Request) {
	var req memoryVerifiedRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	out, err := h.deps.Memory.Verified(r.Context(), AccountID(r.Context()), req.Claim, req.Evidence, req.Tags)
	if err != nil {
		writeError(w, err)
		return
	}
	if out.Rejected != nil {
		writeJSON(w, http.StatusOK, rejected(out.Rejected))
		return
	}

	var id string
	if len(out.Stored.IDs) > 0 {
		id = out.Stored.IDs[0]
	}
	writeJSON(w, http.StatusOK, verifiedResponse{
		Status:       statusSuccess,
		ID:           id,
		NewBalance:   out.Stored.NewBalance,
		Verification: out.Verification,
	})
}

func (h *handlers) listKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.deps.Keys.List(r.Context(), AccountID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]keyResponse, 0, len(keys))
	for _, k := range keys {
		prefix := k.KeyPrefix
		if prefix == "" {
			prefix = common.APIKeyPrefix + "..."
		}
		out = append(out, keyResponse{
			ID:         k.ID,
			Name:       k.Name,
			Prefix:     prefix,
			CreatedAt:  k.CreatedAt,
			LastUsedAt: k.LastUsedAt,
			IsActive:   k.IsActive,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) createKey(w http.ResponseWriter, r *http.Request) {
	var req keyCreateRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	k, err := h.deps.Keys.Issue(r.Context(), AccountID(r.Context()), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, keyResponse{
		ID:        k.ID,
		Name:      k.Name,
		Prefix:    k.Prefix,
		CreatedAt: k.CreatedAt,
		IsActive:  true,
		APIKey:    k.Key,
	})
}

func (h *handlers) revokeKey(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Keys.Revoke(r.Context(), AccountID(r.Context()), chi.URLParam(r, "keyID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: statusSuccess})
}

func stored(s *services.Stored) storedResponse {
	balance := s.NewBalance
	return storedResponse{
		Status:          statusSuccess,
		IDs:             s.IDs,
		ChunksCreated:   s.ChunksCreated,
		CreditsDeducted: s.CreditsDeducted,
		NewBalance:      &balance,
	}
}

func rejected(r *services.Rejection) rejectedResponse {
	return rejectedResponse{Status: statusRejected, Reason: r.Reason, Confidence: r.Confidence}
}
