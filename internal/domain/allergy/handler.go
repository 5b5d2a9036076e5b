package allergy

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/ehr/allergy/internal/platform/auth"
	"github.com/ehr/allergy/pkg/pagination"
)

type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "physician", "nurse", "pharmacist"))
	read.GET("/allergies/:id", h.GetAllergy)
	read.GET("/allergies/:id/history", h.GetSeverityHistory)
	read.GET("/patients/:patient_id/allergies", h.GetActiveAllergies)
	read.GET("/patients/:patient_id/interactions", h.CheckInteraction)
	read.GET("/cross-sensitivities/:drug", h.RelatedDrugs)

	write := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	write.POST("/allergies", h.RecordAllergy)
	write.PUT("/allergies/:id/severity", h.UpdateSeverity)
	write.POST("/allergies/:id/resolve", h.ResolveAllergy)

	admin := api.Group("", auth.RequireRole("admin"))
	admin.POST("/cross-sensitivities", h.RegisterCrossSensitivity)
}

type recordRequest struct {
	PatientID     string     `json:"patient_id" validate:"required"`
	ProviderID    string     `json:"provider_id"`
	Allergen      string     `json:"allergen" validate:"required"`
	AllergenType  string     `json:"allergen_type" validate:"required"`
	ReactionTypes []string   `json:"reaction_types"`
	Severity      string     `json:"severity" validate:"required"`
	OnsetDate     *time.Time `json:"onset_date"`
	Verified      bool       `json:"verified"`
}

type severityRequest struct {
	ProviderID string `json:"provider_id"`
	Severity   string `json:"severity" validate:"required"`
	Reason     string `json:"reason"`
}

type resolveRequest struct {
	ProviderID     string     `json:"provider_id"`
	ResolutionDate *time.Time `json:"resolution_date" validate:"required"`
	Reason         string     `json:"reason"`
}

type crossSensitivityRequest struct {
	DrugA string `json:"drug_a" validate:"required"`
	DrugB string `json:"drug_b" validate:"required"`
}

func (h *Handler) RecordAllergy(c echo.Context) error {
	var req recordRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	id, err := h.svc.RecordAllergy(ctx, NewAllergy{
		PatientID:     req.PatientID,
		ProviderID:    principalOr(c, req.ProviderID),
		Allergen:      req.Allergen,
		AllergenType:  req.AllergenType,
		ReactionTypes: req.ReactionTypes,
		Severity:      req.Severity,
		OnsetDate:     req.OnsetDate,
		Verified:      req.Verified,
	})
	if err != nil {
		return httpError(err)
	}
	rec, err := h.svc.GetAllergy(ctx, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) GetAllergy(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.GetAllergy(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) UpdateSeverity(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req severityRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.svc.UpdateAllergySeverity(ctx, id, principalOr(c, req.ProviderID), req.Severity, req.Reason); err != nil {
		return httpError(err)
	}
	rec, err := h.svc.GetAllergy(ctx, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ResolveAllergy(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req resolveRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.svc.ResolveAllergy(ctx, id, principalOr(c, req.ProviderID), *req.ResolutionDate, req.Reason); err != nil {
		return httpError(err)
	}
	rec, err := h.svc.GetAllergy(ctx, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetSeverityHistory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	history, err := h.svc.GetSeverityHistory(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(history, pg), len(history), pg.Limit, pg.Offset))
}

func (h *Handler) GetActiveAllergies(c echo.Context) error {
	recs, err := h.svc.GetActiveAllergies(c.Request().Context(), c.Param("patient_id"), principalOr(c, c.QueryParam("requester")))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *Handler) CheckInteraction(c echo.Context) error {
	drug := c.QueryParam("drug")
	if drug == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "drug is required")
	}
	warnings, err := h.svc.CheckDrugAllergyInteraction(c.Request().Context(), c.Param("patient_id"), drug)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, warnings)
}

func (h *Handler) RegisterCrossSensitivity(c echo.Context) error {
	var req crossSensitivityRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.svc.RegisterCrossSensitivity(ctx, auth.UserIDFromContext(ctx), req.DrugA, req.DrugB); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RelatedDrugs(c echo.Context) error {
	related, err := h.svc.RelatedDrugs(c.Request().Context(), c.Param("drug"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, related)
}

func (h *Handler) bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func parseID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// principalOr returns p, or the authenticated caller when p is empty.
func principalOr(c echo.Context, p string) string {
	if p != "" {
		return p
	}
	return auth.UserIDFromContext(c.Request().Context())
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrAllergyNotFound), errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrDuplicateAllergy), errors.Is(err, ErrAlreadyResolved):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidSeverity),
		errors.Is(err, ErrInvalidAllergenType),
		errors.Is(err, ErrInvalidAllergen),
		errors.Is(err, ErrAllergenTooLong),
		errors.Is(err, ErrReactionTooLong),
		errors.Is(err, ErrInvalidTimestamp),
		errors.Is(err, ErrReasonTooLong):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
