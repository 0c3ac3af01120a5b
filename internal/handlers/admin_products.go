package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/models"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func (h *AdminHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	// Admin sees every dish, including ones hidden from the menu
	products, err := h.Store.ListProducts(r.Context(), store.ProductFilter{IncludeUnavailable: true})
	if err != nil {
		h.serverError(w, "Error fetching products", err)
		return
	}
	h.render(w, r, http.StatusOK, "admin_products.html", map[string]any{
		"Products": products,
	})
}

func (h *AdminHandler) NewProductForm(w http.ResponseWriter, r *http.Request) {
	h.renderProductForm(w, r, http.StatusOK, &models.Product{IsAvailable: true}, nil)
}

func (h *AdminHandler) EditProductForm(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	product, err := h.Store.GetProduct(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, "Error fetching product", err)
		return
	}
	h.renderProductForm(w, r, http.StatusOK, product, nil)
}

func (h *AdminHandler) renderProductForm(w http.ResponseWriter, r *http.Request, status int, p *models.Product, errs map[string]string) {
	categories, err := h.Store.ListCategories(r.Context())
	if err != nil {
		h.serverError(w, "Error fetching categories", err)
		return
	}
	h.render(w, r, status, "admin_product_form.html", map[string]any{
		"Product":    p,
		"Categories": categories,
		"Errors":     errs,
		"IsNew":      p.ID == 0,
	})
}

// productFromForm reads and validates the product fields of a multipart form.
func productFromForm(r *http.Request) (*models.Product, map[string]string) {
	errs := make(map[string]string)
	p := &models.Product{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Description: strings.TrimSpace(r.FormValue("description")),
		IsFeatured:  r.FormValue("is_featured") == "on",
		IsAvailable: r.FormValue("is_available") == "on",
	}

	if p.Name == "" {
		errs["name"] = "Name is required."
	}
	if id, ok := parseID(r.FormValue("category_id")); ok {
		p.CategoryID = id
	} else {
		errs["category_id"] = "Please choose a category."
	}
	priceStr := strings.TrimSpace(r.FormValue("price"))
	if priceStr == "" {
		errs["price"] = "Price is required."
	} else if price, err := decimal.NewFromString(priceStr); err != nil {
		errs["price"] = "Invalid price format."
	} else if !price.IsPositive() {
		errs["price"] = "Price must be positive."
	} else {
		p.Price = price.Round(2)
	}
	return p, errs
}

func (h *AdminHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.redirect(w, r, "/admin/products/new", "error", "File too large. Max 10MB.")
		return
	}

	p, errs := productFromForm(r)
	if len(errs) > 0 {
		h.renderProductForm(w, r, http.StatusUnprocessableEntity, p, errs)
		return
	}

	if file, header, err := r.FormFile("image"); err == nil {
		defer file.Close()
		url, err := h.saveImage(file, header)
		if err != nil {
			h.renderProductForm(w, r, http.StatusUnprocessableEntity, p, map[string]string{"image": imageErrorMessage(err)})
			return
		}
		p.Image = url
	}

	id, err := h.Store.CreateProduct(r.Context(), p)
	if err != nil {
		h.removeImage(p.Image)
		h.serverError(w, "Error saving product", err)
		return
	}
	h.redirect(w, r, "/admin/products", "success", fmt.Sprintf("%s added to the menu (#%d).", p.Name, id))
}

func (h *AdminHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	editURL := fmt.Sprintf("/admin/products/%d/edit", id)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.redirect(w, r, editURL, "error", "File too large. Max 10MB.")
		return
	}

	existing, err := h.Store.GetProduct(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, "Error fetching product", err)
		return
	}

	p, errs := productFromForm(r)
	p.ID = id
	p.Image = existing.Image
	if len(errs) > 0 {
		h.renderProductForm(w, r, http.StatusUnprocessableEntity, p, errs)
		return
	}

	if err := h.Store.UpdateProduct(r.Context(), p); err != nil {
		h.serverError(w, "Error updating product", err)
		return
	}

	// Handle optional image update
	if file, header, err := r.FormFile("image"); err == nil {
		defer file.Close()
		url, err := h.saveImage(file, header)
		if err != nil {
			h.redirect(w, r, editURL, "error", "Details saved, but the image was rejected: "+imageErrorMessage(err))
			return
		}
		if err := h.Store.UpdateProductImage(r.Context(), id, url); err != nil {
			h.removeImage(url)
			h.serverError(w, "Error updating product image", err)
			return
		}
		h.removeImage(existing.Image)
	}

	h.redirect(w, r, "/admin/products", "success", "Product updated successfully!")
}

// DeleteProduct removes a dish, or hides it from the menu when past orders
// reference it.
func (h *AdminHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	p, err := h.Store.GetProduct(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		h.redirect(w, r, "/admin/products", "error", "Product not found.")
		return
	}
	if err != nil {
		h.serverError(w, "Error fetching product", err)
		return
	}

	err = h.Store.DeleteProduct(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrProductInUse):
		p.IsAvailable = false
		if err := h.Store.UpdateProduct(r.Context(), p); err != nil {
			h.serverError(w, "Error hiding product", err)
			return
		}
		h.redirect(w, r, "/admin/products", "success", p.Name+" has past orders, so it was hidden from the menu instead.")
	case err != nil:
		h.serverError(w, "Error deleting product", err)
	default:
		h.removeImage(p.Image)
		h.redirect(w, r, "/admin/products", "success", "Product deleted successfully!")
	}
}

func imageErrorMessage(err error) string {
	if errors.Is(err, errUnsupportedImage) {
		return "Unsupported image format. Only PNG, JPG, JPEG are allowed."
	}
	if errors.Is(err, errImageTooLarge) {
		return fmt.Sprintf("Image is too large. Maximum %dx%d pixels.", maxSourceSide, maxSourceSide)
	}
	return "Failed to process image."
}
