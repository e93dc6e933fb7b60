package uploads

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	lastBucket string
	lastPath   string
	err        error
}

func (f *fakeClient) CreateSignedUploadURL(ctx context.Context, bucket, path string) (string, error) {
	f.lastBucket = bucket
	f.lastPath = path
	if f.err != nil {
		return "", f.err
	}
	return "https://example.com/upload", nil
}

func setupUploadTest(t *testing.T) (*Handlers, *fakeClient) {
	client := &fakeClient{}
	svc := &Service{
		Client:      client,
		SupabaseURL: "https://example.supabase.co",
	}
	h := &Handlers{Service: svc}
	return h, client
}

func TestUploadPaymentProof_MissingFileName(t *testing.T) {
	h, _ := setupUploadTest(t)
	app := fiber.New()
	app.Post("/api/v1/uploads/payment-proof", h.UploadPaymentProof)

	body, _ := json.Marshal(map[string]string{})
	req := httptest.NewRequest("POST", "/api/v1/uploads/payment-proof", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestUploadPaymentProof_Success(t *testing.T) {
	h, client := setupUploadTest(t)
	app := fiber.New()
	app.Post("/api/v1/uploads/payment-proof", h.UploadPaymentProof)

	body, _ := json.Marshal(map[string]string{"file_name": "receipt.png"})
	req := httptest.NewRequest("POST", "/api/v1/uploads/payment-proof", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, BucketPaymentProofs, client.lastBucket)
}

func TestUploadDocument_Success(t *testing.T) {
	h, client := setupUploadTest(t)
	app := fiber.New()
	app.Post("/api/v1/uploads/document", h.UploadDocument)

	body, _ := json.Marshal(map[string]string{"file_name": "moa.pdf"})
	req := httptest.NewRequest("POST", "/api/v1/uploads/document", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, BucketDocuments, client.lastBucket)
}
