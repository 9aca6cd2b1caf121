package handlers

import (
	"io"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/apperror"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/middleware"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/models"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/repository"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/listing"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/storage"
)

type ListingHandler struct {
	Listings *listing.Service
}

// ForKind pins the listing kind for a route group such as /api/cars.
func ForKind(kind models.ListingKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("kind", kind)
		return c.Next()
	}
}

func listingKind(c *fiber.Ctx) (models.ListingKind, error) {
	if k, ok := c.Locals("kind").(models.ListingKind); ok {
		return k, nil
	}
	return paramKind(c)
}

func listingQuery(c *fiber.Ctx) repository.ListingQuery {
	return repository.ListingQuery{
		Page:     pageFrom(c),
		Status:   models.ListingStatus(strings.ToLower(c.Query("status"))),
		Purpose:  models.DealType(strings.ToLower(c.Query("purpose"))),
		City:     strings.TrimSpace(c.Query("city")),
		Search:   strings.TrimSpace(c.Query("search")),
		MinPrice: c.QueryFloat("min_price", 0),
		MaxPrice: c.QueryFloat("max_price", 0),
		Sort:     c.Query("sort", "latest"),
	}
}

func (h *ListingHandler) List(c *fiber.Ctx) error {
	kind, err := listingKind(c)
	if err != nil {
		return err
	}
	q := listingQuery(c)
	items, total, err := h.Listings.List(c.UserContext(), kind, q)
	if err != nil {
		return err
	}
	return paginated(c, "OK", items, q.Page, total)
}

func (h *ListingHandler) ListMine(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	kind, err := listingKind(c)
	if err != nil {
		return err
	}
	q := listingQuery(c)
	items, total, err := h.Listings.ListMine(c.UserContext(), p, kind, q)
	if err != nil {
		return err
	}
	return paginated(c, "OK", items, q.Page, total)
}

func (h *ListingHandler) Get(c *fiber.Ctx) error {
	kind, err := listingKind(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.Listings.Get(c.UserContext(), kind, id, optionalPrincipal(c))
	if err != nil {
		return err
	}
	return ok(c, "OK", d)
}

func (h *ListingHandler) Create(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	kind, err := listingKind(c)
	if err != nil {
		return err
	}
	l := models.NewListing(kind)
	if err := parseBody(c, l); err != nil {
		return err
	}
	out, err := h.Listings.Create(c.UserContext(), p, l)
	if err != nil {
		return err
	}
	msg := "Listing created"
	if !out.Common().Approved {
		msg = "Listing submitted for review"
	}
	return created(c, msg, out)
}

func (h *ListingHandler) Update(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	kind, err := listingKind(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	if len(c.Body()) == 0 {
		return apperror.Invalid("INVALID_BODY", "body", "request body is required")
	}
	out, err := h.Listings.Update(c.UserContext(), p, kind, id, c.Body())
	if err != nil {
		return err
	}
	return ok(c, "Listing updated", out)
}

func (h *ListingHandler) Delete(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	kind, err := listingKind(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Listings.Delete(c.UserContext(), p, kind, id); err != nil {
		return err
	}
	return ok(c, "Listing deleted", nil)
}

type listingStatusReq struct {
	Status models.ListingStatus `json:"status"`
}

func (h *ListingHandler) SetStatus(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	kind, err := listingKind(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req listingStatusReq
	if err := parseBody(c, &req); err != nil {
		return err
	}
	out, err := h.Listings.SetStatus(c.UserContext(), p, kind, id, models.ListingStatus(strings.ToLower(string(req.Status))))
	if err != nil {
		return err
	}
	return ok(c, "Status updated", out)
}

func (h *ListingHandler) ToggleFavorite(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	kind, err := listingKind(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	on, n, err := h.Listings.ToggleFavorite(c.UserContext(), p, kind, id)
	if err != nil {
		return err
	}
	msg := "Removed from favorites"
	if on {
		msg = "Added to favorites"
	}
	return ok(c, msg, fiber.Map{"is_favorite": on, "favorites_count": n})
}

func (h *ListingHandler) Favorites(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	items, err := h.Listings.ListFavorites(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	return ok(c, "OK", items)
}

func (h *ListingHandler) UploadImage(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	kind, err := listingKind(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	file, err := c.FormFile("image")
	if err != nil {
		return apperror.Invalid("IMAGE_REQUIRED", "image", "image file is required")
	}
	if file.Size > storage.MaxUploadBytes {
		return apperror.Invalid("IMAGE_TOO_LARGE", "image", "image exceeds the upload limit")
	}
	f, err := file.Open()
	if err != nil {
		return apperror.Internal(err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, storage.MaxUploadBytes+1))
	if err != nil {
		return apperror.Internal(err)
	}
	out, err := h.Listings.AddImage(c.UserContext(), p, kind, id, data)
	if err != nil {
		return err
	}
	return created(c, "Image uploaded", out)
}

// RemoveImage takes the storage id from the wildcard since keys contain slashes.
func (h *ListingHandler) RemoveImage(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	kind, err := listingKind(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	storageID, err := url.PathUnescape(c.Params("*"))
	if err != nil || storageID == "" {
		return apperror.Invalid("INVALID_ID", "storage_id", "invalid image id")
	}
	out, err := h.Listings.RemoveImage(c.UserContext(), p, kind, id, storageID)
	if err != nil {
		return err
	}
	return ok(c, "Image removed", out)
}
