package uploadImage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"imageCutout/internal/lib/api/response"
	"imageCutout/internal/lib/logger/sl"
	"imageCutout/internal/models"
	"imageCutout/internal/processor"
)

type Response struct {
	response.Response
	ID           string `json:"id"`
	ShortID      string `json:"shortId"`
	OriginalURL  string `json:"originalUrl"`
	ProcessedURL string `json:"processedUrl"`
	ShareURL     string `json:"shareUrl"`
}

//go:generate go run github.com/vektra/mockery/v2@v2.51.1 --name=ImageUploader
type ImageUploader interface {
	Upload(ctx context.Context, in processor.UploadInput) (*models.Image, error)
}

// New uploads an image, removes its background and returns a share link.
// @Summary      Uploads an image
// @Description  Uploads an image, removes its background, optionally mirrors it, and returns public URLs plus a share link
// @Tags         images
// @Accept       multipart/form-data
// @Produce      json
// @Param        image   formData  file    true   "Image file to upload"
// @Param        mirror  formData  string  false  "Set to \"true\" to mirror the processed image"
// @Success      201  {object}  uploadImage.Response
// @Failure      400  {object}  response.Response
// @Failure      429  {object}  response.Response
// @Failure      500  {object}  response.Response
// @Router       /api/upload [post]
func New(log *slog.Logger, uploader ImageUploader, baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.image.uploadImage.New"

		log = log.With(
			slog.String("op", op),
		)

		file, header, err := r.FormFile("image")
		if err != nil {
			log.Error("failed to get file from request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("no image provided"))
			return
		}
		defer func(file multipart.File) {
			_ = file.Close()
		}(file)

		data, err := io.ReadAll(file)
		if err != nil {
			log.Error("failed to read file from request", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to read file"))
			return
		}

		if len(data) == 0 {
			log.Error("received empty file")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("received empty file"))
			return
		}

		image, err := uploader.Upload(r.Context(), processor.UploadInput{
			Data:        data,
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Mirror:      r.FormValue("mirror") == "true",
		})
		if err != nil {
			writeUploadError(w, r, log, err)
			return
		}

		log.Info("image uploaded",
			slog.String("image_id", image.ID),
			slog.String("short_id", image.ShortID),
		)

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, Response{
			Response:     response.OK(),
			ID:           image.ID,
			ShortID:      image.ShortID,
			OriginalURL:  image.OriginalURL,
			ProcessedURL: image.ProcessedURL,
			ShareURL:     strings.TrimRight(baseURL, "/") + "/i/" + image.ShortID,
		})
	}
}

// writeUploadError maps a pipeline stage to a status code. Validation reasons
// are safe to show; everything else gets a generic message.
func writeUploadError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var stageErr *processor.StageError
	if errors.As(err, &stageErr) {
		switch stageErr.Stage {
		case processor.StageValidation:
			log.Warn("upload rejected", sl.Err(stageErr.Err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(stageErr.Err.Error()))
			return
		case processor.StageUpstream:
			log.Error("background removal failed", sl.Err(stageErr.Err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to remove image background"))
			return
		case processor.StageStorage:
			log.Error("failed to store image", sl.Err(stageErr.Err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to store image"))
			return
		case processor.StagePersistence:
			log.Error("failed to save image metadata", sl.Err(stageErr.Err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to save image metadata"))
			return
		}
	}

	log.Error("upload failed", sl.Err(err))
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, response.Error("internal error"))
}
