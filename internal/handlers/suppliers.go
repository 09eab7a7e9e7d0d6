package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/bizcore/internal/services"
	"github.com/charlesng35/bizcore/pkg/response"
)

// SupplierHandler is the tenant-scoped business surface. Tenant and
// permission scoping happen in the service.
type SupplierHandler struct {
	suppliers *services.SupplierService
}

func NewSupplierHandler(suppliers *services.SupplierService) *SupplierHandler {
	return &SupplierHandler{suppliers: suppliers}
}

type supplierRequest struct {
	Name  string `json:"name" validate:"required,max=255"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty,max=64"`
	Notes string `json:"notes" validate:"omitempty,max=4000"`
}

func (r supplierRequest) input() services.SupplierInput {
	return services.SupplierInput{Name: r.Name, Email: r.Email, Phone: r.Phone, Notes: r.Notes}
}

// GET /api/suppliers
func (h *SupplierHandler) List(c *gin.Context) {
	suppliers, err := h.suppliers.List(requestContext(c), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, suppliers)
}

// GET /api/suppliers/:id
func (h *SupplierHandler) Get(c *gin.Context) {
	supplier, err := h.suppliers.Get(requestContext(c), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, supplier)
}

// POST /api/suppliers
func (h *SupplierHandler) Create(c *gin.Context) {
	var req supplierRequest
	if !bindAndValidate(c, &req) {
		return
	}
	supplier, err := h.suppliers.Create(requestContext(c), currentUserID(c), req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, supplier)
}

// PUT /api/suppliers/:id
func (h *SupplierHandler) Update(c *gin.Context) {
	var req supplierRequest
	if !bindAndValidate(c, &req) {
		return
	}
	supplier, err := h.suppliers.Update(requestContext(c), currentUserID(c), c.Param("id"), req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, supplier)
}

// DELETE /api/suppliers/:id
func (h *SupplierHandler) Delete(c *gin.Context) {
	if err := h.suppliers.Delete(requestContext(c), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
