package redirectImage_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"imageCutout/internal/http-server/handlers/image/redirectImage"
	"imageCutout/internal/http-server/handlers/image/redirectImage/mocks"
	"imageCutout/internal/models"
)

func TestRedirectImage(t *testing.T) {
	log := slog.New(slog.NewJSONHandler(bytes.NewBuffer(nil), nil))

	testImage := &models.Image{
		ID:           "aBcDeFgHiJkLmNoPqRsTu",
		ShortID:      "aBcDeFgH",
		OriginalURL:  "http://cdn.local/images/originals/aBcDeFgHiJkLmNoPqRsTu.png",
		ProcessedURL: "http://cdn.local/images/processed/aBcDeFgHiJkLmNoPqRsTu.png",
	}

	tests := []struct {
		name           string
		shortID        string
		mockImage      *models.Image
		mockErr        error
		expectedStatus int
		expectedTarget string
		expectedBody   string
	}{
		{
			name:           "Success",
			shortID:        testImage.ShortID,
			mockImage:      testImage,
			expectedStatus: http.StatusFound,
			expectedTarget: testImage.ProcessedURL,
		},
		{
			name:           "Not Found",
			shortID:        "nope1234",
			mockErr:        sql.ErrNoRows,
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"status":"Error","error":"image not found"}`,
		},
		{
			name:           "Internal Error",
			shortID:        testImage.ShortID,
			mockErr:        errors.New("db error"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"failed to get image"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolverMock := mocks.NewShortLinkResolver(t)

			resolverMock.On("GetImageByShortID", mock.Anything, tt.shortID).Return(tt.mockImage, tt.mockErr).Once()

			req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/i/%s", tt.shortID), nil)

			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("shortId", tt.shortID)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			rr := httptest.NewRecorder()

			handler := redirectImage.New(log, resolverMock)
			handler.ServeHTTP(rr, req)

			require.Equal(t, tt.expectedStatus, rr.Code)

			if tt.expectedTarget != "" {
				require.Equal(t, tt.expectedTarget, rr.Header().Get("Location"))
				return
			}

			var actualMap, expectedMap map[string]interface{}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &actualMap))
			require.NoError(t, json.Unmarshal([]byte(tt.expectedBody), &expectedMap))
			require.Equal(t, expectedMap, actualMap)
		})
	}
}
