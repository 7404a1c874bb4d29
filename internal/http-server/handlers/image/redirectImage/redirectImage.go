package redirectImage

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"imageCutout/internal/lib/api/response"
	"imageCutout/internal/lib/logger/sl"
	"imageCutout/internal/models"
)

//go:generate go run github.com/vektra/mockery/v2@v2.51.1 --name=ShortLinkResolver
type ShortLinkResolver interface {
	GetImageByShortID(ctx context.Context, shortID string) (*models.Image, error)
}

// New resolves a share link and redirects to the processed image file.
// @Summary      Opens a shared image
// @Tags         images
// @Produce      json
// @Param        shortId  path  string  true  "Short image ID"
// @Success      302
// @Failure      404  {object}  response.Response
// @Failure      500  {object}  response.Response
// @Router       /i/{shortId} [get]
func New(log *slog.Logger, resolver ShortLinkResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.image.redirectImage.New"

		log = log.With(slog.String("op", op))

		shortID := chi.URLParam(r, "shortId")
		if shortID == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid share link"))
			return
		}

		image, err := resolver.GetImageByShortID(r.Context(), shortID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				log.Warn("share link not found", slog.String("short_id", shortID))
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.Error("image not found"))
				return
			}

			log.Error("failed to resolve share link", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to get image"))
			return
		}

		log.Info("share link resolved",
			slog.String("short_id", shortID),
			slog.String("image_id", image.ID),
		)

		http.Redirect(w, r, image.ProcessedURL, http.StatusFound)
	}
}
