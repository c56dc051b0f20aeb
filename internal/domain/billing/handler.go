package billing

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/hms/hms/internal/platform/auth"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "billing"))
	g.POST("/bills", h.CreateBill)
	g.GET("/bills", h.ListBills)
	g.GET("/bills/overdue", h.ListOverdueBills)
	g.GET("/bills/summary", h.GetSummary)
	g.GET("/bills/:id", h.GetBill)
	g.POST("/bills/:id/items", h.AddItem)
	g.POST("/bills/:id/payments", h.ProcessPayment)
	g.GET("/bills/:id/payments", h.ListPayments)
	g.PATCH("/payments/:id/status", h.UpdatePaymentStatus)
}

// httpError maps domain errors onto HTTP statuses: validation failures are
// 400, missing resources 404, anything else 500.
func httpError(err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var nfe *NotFoundError
	if errors.As(err, &nfe) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

type createBillRequest struct {
	PatientID   string `json:"patient_id"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
}

func (h *Handler) CreateBill(c echo.Context) error {
	var req createBillRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "due_date must be formatted as YYYY-MM-DD")
	}
	bill, err := h.engine.CreateBill(c.Request().Context(), req.PatientID, req.Description, dueDate)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, bill)
}

func (h *Handler) GetBill(c echo.Context) error {
	bill, err := h.engine.GetBill(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, bill)
}

func (h *Handler) ListBills(c echo.Context) error {
	ctx := c.Request().Context()
	if patientID := c.QueryParam("patient_id"); patientID != "" {
		bills, err := h.engine.ListBillsByPatient(ctx, patientID)
		if err != nil {
			return httpError(err)
		}
		return jsonBills(c, bills)
	}
	if paidParam := c.QueryParam("paid"); paidParam != "" {
		paid, err := strconv.ParseBool(paidParam)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "paid must be true or false")
		}
		bills, err := h.engine.ListBillsByPaid(ctx, paid)
		if err != nil {
			return httpError(err)
		}
		return jsonBills(c, bills)
	}
	bills, err := h.engine.ListBills(ctx)
	if err != nil {
		return httpError(err)
	}
	return jsonBills(c, bills)
}

func (h *Handler) ListOverdueBills(c echo.Context) error {
	bills, err := h.engine.ListOverdueBills(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return jsonBills(c, bills)
}

func jsonBills(c echo.Context, bills []*Bill) error {
	if bills == nil {
		bills = []*Bill{}
	}
	return c.JSON(http.StatusOK, bills)
}

func (h *Handler) GetSummary(c echo.Context) error {
	summary, err := h.engine.GetSummary(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

type addItemRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

func (h *Handler) AddItem(c echo.Context) error {
	var req addItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	bill, err := h.engine.AddItemToBill(c.Request().Context(), c.Param("id"), req.Description, req.Amount)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, bill)
}

type processPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
}

func (h *Handler) ProcessPayment(c echo.Context) error {
	var req processPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payment, err := h.engine.ProcessPayment(c.Request().Context(), c.Param("id"), req.Amount, req.Method)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, payment)
}

func (h *Handler) ListPayments(c echo.Context) error {
	payments, err := h.engine.ListPaymentsByBill(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	if payments == nil {
		payments = []*Payment{}
	}
	return c.JSON(http.StatusOK, payments)
}

type updatePaymentStatusRequest struct {
	Status PaymentStatus `json:"status"`
}

func (h *Handler) UpdatePaymentStatus(c echo.Context) error {
	var req updatePaymentStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payment, err := h.engine.UpdatePaymentStatus(c.Request().Context(), c.Param("id"), req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, payment)
}
