package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jordanlanch/familycart/pkg/cache"
	"github.com/jordanlanch/familycart/pkg/claims"
	"github.com/jordanlanch/familycart/pkg/entitlement"
	"github.com/jordanlanch/familycart/pkg/family"
	"github.com/jordanlanch/familycart/pkg/logger"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/jordanlanch/familycart/pkg/store/redisstore"
	"github.com/jordanlanch/familycart/pkg/store/storetest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngImage = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

type fakeVision struct {
	text  string
	err   error
	calls int
}

func (f *fakeVision) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeArchive struct {
	objects map[string][]byte
	putErr  error
}

func (f *fakeArchive) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = body
	return nil
}

func (f *fakeArchive) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

type fixture struct {
	store    *redisstore.Store
	families *family.Service
	checker  *entitlement.Checker
	vision   *fakeVision
	archive  *fakeArchive
}

func setup(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := cache.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { client.Close() })

	s := redisstore.New(client)
	return &fixture{
		store:    s,
		families: family.NewService(s, claims.NewPropagator(s, logger.Nop(), nil), logger.Nop()),
		checker:  entitlement.NewChecker(s, logger.Nop(), nil),
		vision:   &fakeVision{text: "MILK 2.99"},
		archive:  &fakeArchive{objects: make(map[string][]byte)},
	}
}

func (f *fixture) service(vision Vision, archive Archive) *Service {
	return NewService(f.store, f.checker, f.families, vision, archive, logger.Nop(), nil)
}

func (f *fixture) member(t *testing.T) (*models.User, *models.FamilyGroup) {
	t.Helper()
	u := storetest.NewUser()
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	g, err := f.families.Create(context.Background(), u.ID, "Home")
	require.NoError(t, err)
	return u, g
}

func request(groupID string) models.ProcessOCRRequest {
	return models.ProcessOCRRequest{FamilyGroupID: groupID, Image: base64.StdEncoding.EncodeToString(pngImage)}
}

func TestProcess_StoresScanAndCountsUsage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u, g := f.member(t)
	svc := f.service(f.vision, f.archive)

	resp, err := svc.Process(ctx, u.ID, false, request(g.ID))
	require.NoError(t, err)
	assert.Equal(t, "MILK 2.99", resp.Text)
	assert.NotEmpty(t, resp.ScanID)

	assert.Contains(t, f.archive.objects, "receipts/"+u.ID+"/"+resp.ScanID+".png")

	usage, found, err := f.store.GetUsage(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, usage.OCRProcessed)

	// free tier: one scan per month
	_, err = svc.Process(ctx, u.ID, false, request(g.ID))
	var exhausted *entitlement.ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, f.vision.calls)
}

func TestProcess_NotConfigured(t *testing.T) {
	f := setup(t)
	u, g := f.member(t)

	_, err := f.service(nil, nil).Process(context.Background(), u.ID, false, request(g.ID))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestProcess_VisionFailureIsWrapped(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u, g := f.member(t)
	f.vision.err = errors.New("upstream 503: model overloaded")

	_, err := f.service(f.vision, nil).Process(ctx, u.ID, false, request(g.ID))
	assert.ErrorIs(t, err, ErrVisionFailed)

	_, found, err := f.store.GetUsage(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, found, "failed scans are not counted")
}

func TestProcess_ArchiveFailureDoesNotFailScan(t *testing.T) {
	f := setup(t)
	u, g := f.member(t)
	f.archive.putErr = errors.New("s3 down")

	resp, err := f.service(f.vision, f.archive).Process(context.Background(), u.ID, false, request(g.ID))
	require.NoError(t, err)
	assert.Equal(t, "MILK 2.99", resp.Text)
}

func TestProcess_RequiresMembership(t *testing.T) {
	f := setup(t)
	_, g := f.member(t)
	outsider, _ := f.member(t)

	_, err := f.service(f.vision, nil).Process(context.Background(), outsider.ID, false, request(g.ID))
	assert.ErrorIs(t, err, family.ErrNotMember)
	assert.Zero(t, f.vision.calls)
}

func TestDecodeImage(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString(pngImage)

	img, mimeType, err := DecodeImage(raw)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, pngImage, img)

	_, mimeType, err = DecodeImage("data:image/png;base64," + raw)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)

	for _, bad := range []string{"", "not base64!!", "data:image/png;base64", base64.StdEncoding.EncodeToString([]byte("plain text, not an image"))} {
		_, _, err := DecodeImage(bad)
		assert.ErrorIs(t, err, ErrInvalidImage, "input %q", bad)
	}
}
