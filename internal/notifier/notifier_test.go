//go:build unit

package notifier_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/eruvnet/eruv-alerts-api/internal/metrics"
	"github.com/eruvnet/eruv-alerts-api/internal/models"
	"github.com/eruvnet/eruv-alerts-api/internal/notifier"
	"github.com/eruvnet/eruv-alerts-api/internal/services/status"
	"github.com/eruvnet/eruv-alerts-api/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockSheet struct {
	mock.Mock
}

func (m *mockSheet) Statuses(ctx context.Context) ([]models.CityStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.CityStatus), args.Error(1)
}

func (m *mockSheet) Communities(ctx context.Context) ([]models.Community, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Community), args.Error(1)
}

func (m *mockSheet) Subscribers(ctx context.Context) ([]models.Subscriber, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Subscriber), args.Error(1)
}

func (m *mockSheet) UpdateLastNotified(ctx context.Context, row int, cityStatus string) error {
	args := m.Called(ctx, row, cityStatus)
	return args.Error(0)
}

type mockTimes struct {
	mock.Mock
}

func (m *mockTimes) Fetch(ctx context.Context, zipCode string) (models.ShabbatTimes, error) {
	args := m.Called(ctx, zipCode)
	return args.Get(0).(models.ShabbatTimes), args.Error(1)
}

type mockWeather struct {
	mock.Mock
}

func (m *mockWeather) GetByZip(ctx context.Context, zipCode string) (models.WeatherData, error) {
	args := m.Called(ctx, zipCode)
	return args.Get(0).(models.WeatherData), args.Error(1)
}

type mockComposer struct {
	mock.Mock
}

func (m *mockComposer) Compose(city, cityStatus string,
	times models.ShabbatTimes, weather *models.WeatherData,
) (string, error) {
	args := m.Called(city, cityStatus, times, weather)
	return args.String(0), args.Error(1)
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, to, body string) (string, error) {
	args := m.Called(ctx, to, body)
	return args.String(0), args.Error(1)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) RecordDelivery(ctx context.Context, d models.Delivery) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *mockStore) UpsertCityStatus(ctx context.Context, cs models.CityStatus) error {
	args := m.Called(ctx, cs)
	return args.Error(0)
}

type fixture struct {
	sheet    *mockSheet
	times    *mockTimes
	weather  *mockWeather
	composer *mockComposer
	sender   *mockSender
	store    *mockStore
	notifier *notifier.Notifier
}

func newFixture(t *testing.T, opts notifier.Options) *fixture {
	t.Helper()

	log, err := logger.New("", "notifier-test")
	require.NoError(t, err)

	f := &fixture{
		sheet:    new(mockSheet),
		times:    new(mockTimes),
		weather:  new(mockWeather),
		composer: new(mockComposer),
		sender:   new(mockSender),
		store:    new(mockStore),
	}
	t.Cleanup(func() {
		f.sheet.AssertExpectations(t)
		f.times.AssertExpectations(t)
		f.weather.AssertExpectations(t)
		f.composer.AssertExpectations(t)
		f.sender.AssertExpectations(t)
		f.store.AssertExpectations(t)
	})

	f.notifier = notifier.New(
		f.sheet,
		status.NewService(log),
		f.times,
		f.weather,
		f.composer,
		f.sender,
		f.store,
		log,
		opts,
		metrics.NewMetrics("test", nil, ""),
	)
	return f
}

var (
	changedTeaneck = models.CityStatus{Row: 2, City: "Teaneck", Status: "Down", LastNotified: "Up"}
	testTimes      = models.ShabbatTimes{
		CandleLighting: "Candle lighting: 7:13pm",
		Havdalah:       "Havdalah (50 min): 8:21pm",
		Parsha:         "Parashat Noach.",
	}
)

func (f *fixture) expectSheets(statuses []models.CityStatus) {
	f.sheet.On("Statuses", mock.Anything).Return(statuses, nil).Once()
	f.sheet.On("Communities", mock.Anything).Return([]models.Community{
		{Contact: "Rabbi Cohen", City: "Teaneck", ZipCode: "07666"},
	}, nil).Once()
	f.sheet.On("Subscribers", mock.Anything).Return([]models.Subscriber{
		{Phone: "201-555-0001", Cities: []string{"Teaneck"}},
		{Phone: "201-555-0002", Cities: []string{"Teaneck"}},
	}, nil).Once()
}

func Test_RunOnce_SendsAndWritesBack(t *testing.T) {
	f := newFixture(t, notifier.Options{MaxSendDelay: 0})

	f.expectSheets([]models.CityStatus{changedTeaneck})
	f.store.On("UpsertCityStatus", mock.Anything, changedTeaneck).Return(nil).Once()

	f.times.On("Fetch", mock.Anything, "07666").Return(testTimes, nil).Once()
	f.weather.On("GetByZip", mock.Anything, "07666").
		Return(models.WeatherData{Conditions: []string{"Clouds"}}, nil).Once()
	f.composer.On("Compose", "Teaneck", "Down", testTimes, mock.Anything).
		Return("The Teaneck Eruv is Down.", nil).Once()

	f.sender.On("Send", mock.Anything, "+12015550001", "The Teaneck Eruv is Down.").
		Return("SM1", nil).Once()
	f.sender.On("Send", mock.Anything, "+12015550002", "The Teaneck Eruv is Down.").
		Return("SM2", nil).Once()
	f.store.On("RecordDelivery", mock.Anything, mock.MatchedBy(func(d models.Delivery) bool {
		return d.City == "Teaneck" && d.Status == "Down" && !d.DryRun
	})).Return(nil).Twice()

	// Write-back happens only after both sends succeeded.
	f.sheet.On("UpdateLastNotified", mock.Anything, 2, "Down").Return(nil).Once()
	notified := changedTeaneck
	notified.LastNotified = "Down"
	f.store.On("UpsertCityStatus", mock.Anything, notified).Return(nil).Once()

	require.NoError(t, f.notifier.RunOnce(context.Background()))
}

func Test_RunOnce_UnchangedCityIsSilent(t *testing.T) {
	f := newFixture(t, notifier.Options{})

	unchanged := models.CityStatus{Row: 2, City: "Teaneck", Status: "Up", LastNotified: "Up"}
	pending := models.CityStatus{Row: 3, City: "Fair Lawn", Status: "Pending", LastNotified: "Up"}

	f.expectSheets([]models.CityStatus{unchanged, pending})
	f.store.On("UpsertCityStatus", mock.Anything, unchanged).Return(nil).Once()
	f.store.On("UpsertCityStatus", mock.Anything, pending).Return(nil).Once()

	require.NoError(t, f.notifier.RunOnce(context.Background()))

	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	f.sheet.AssertNotCalled(t, "UpdateLastNotified", mock.Anything, mock.Anything, mock.Anything)
}

func Test_RunOnce_SendFailureSkipsWriteBack(t *testing.T) {
	f := newFixture(t, notifier.Options{})

	f.expectSheets([]models.CityStatus{changedTeaneck})
	f.store.On("UpsertCityStatus", mock.Anything, changedTeaneck).Return(nil).Once()

	f.times.On("Fetch", mock.Anything, "07666").Return(testTimes, nil).Once()
	f.weather.On("GetByZip", mock.Anything, "07666").
		Return(models.WeatherData{}, nil).Once()
	f.composer.On("Compose", "Teaneck", "Down", testTimes, mock.Anything).
		Return("The Teaneck Eruv is Down.", nil).Once()

	f.sender.On("Send", mock.Anything, "+12015550001", mock.Anything).
		Return("SM1", nil).Once()
	f.store.On("RecordDelivery", mock.Anything, mock.Anything).Return(nil).Once()
	f.sender.On("Send", mock.Anything, "+12015550002", mock.Anything).
		Return("", errors.New("twilio error 20429: Too Many Requests")).Once()

	err := f.notifier.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Teaneck")

	// The status stays un-acknowledged so the whole city retries next pass.
	f.sheet.AssertNotCalled(t, "UpdateLastNotified", mock.Anything, mock.Anything, mock.Anything)
}

func Test_RunOnce_WeatherFailureDoesNotBlockAlert(t *testing.T) {
	f := newFixture(t, notifier.Options{})

	f.expectSheets([]models.CityStatus{changedTeaneck})
	f.store.On("UpsertCityStatus", mock.Anything, mock.Anything).Return(nil).Times(2)

	f.times.On("Fetch", mock.Anything, "07666").Return(testTimes, nil).Once()
	f.weather.On("GetByZip", mock.Anything, "07666").
		Return(models.WeatherData{}, errors.New("all weather providers failed")).Once()

	// Compose runs without weather data.
	f.composer.On("Compose", "Teaneck", "Down", testTimes,
		(*models.WeatherData)(nil)).
		Return("The Teaneck Eruv is Down.", nil).Once()

	f.sender.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return("SM1", nil).Times(2)
	f.store.On("RecordDelivery", mock.Anything, mock.Anything).Return(nil).Times(2)
	f.sheet.On("UpdateLastNotified", mock.Anything, 2, "Down").Return(nil).Once()

	require.NoError(t, f.notifier.RunOnce(context.Background()))
}

func Test_RunOnce_HebcalFailureAbortsCity(t *testing.T) {
	f := newFixture(t, notifier.Options{})

	f.expectSheets([]models.CityStatus{changedTeaneck})
	f.store.On("UpsertCityStatus", mock.Anything, changedTeaneck).Return(nil).Once()

	f.times.On("Fetch", mock.Anything, "07666").
		Return(models.ShabbatTimes{}, errors.New("hebcal error: status 503")).Once()

	err := f.notifier.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetching shabbat times")

	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	f.sheet.AssertNotCalled(t, "UpdateLastNotified", mock.Anything, mock.Anything, mock.Anything)
}

func Test_RunOnce_DryRunRecordsWithoutSending(t *testing.T) {
	f := newFixture(t, notifier.Options{DryRun: true})

	f.expectSheets([]models.CityStatus{changedTeaneck})
	f.store.On("UpsertCityStatus", mock.Anything, changedTeaneck).Return(nil).Once()

	f.times.On("Fetch", mock.Anything, "07666").Return(testTimes, nil).Once()
	f.weather.On("GetByZip", mock.Anything, "07666").
		Return(models.WeatherData{}, nil).Once()
	f.composer.On("Compose", "Teaneck", "Down", testTimes, mock.Anything).
		Return("The Teaneck Eruv is Down.", nil).Once()

	f.store.On("RecordDelivery", mock.Anything, mock.MatchedBy(func(d models.Delivery) bool {
		return d.DryRun
	})).Return(nil).Twice()

	require.NoError(t, f.notifier.RunOnce(context.Background()))

	// Nothing sent, nothing acknowledged: the next real pass still sees the
	// diff.
	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	f.sheet.AssertNotCalled(t, "UpdateLastNotified", mock.Anything, mock.Anything, mock.Anything)
}

func Test_RunOnce_SheetReadFailure(t *testing.T) {
	f := newFixture(t, notifier.Options{})

	f.sheet.On("Statuses", mock.Anything).
		Return([]models.CityStatus(nil), errors.New("googleapi: Error 503")).Once()

	err := f.notifier.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading statuses")
}

func Test_StartStop(t *testing.T) {
	f := newFixture(t, notifier.Options{Schedule: "0 0 14 * * 5"})

	f.notifier.Start(context.Background())
	f.notifier.Stop()
}

func Test_RunOnce_RejectsOverlappingPass(t *testing.T) {
	f := newFixture(t, notifier.Options{})

	entered := make(chan struct{})
	release := make(chan struct{})
	f.sheet.On("Statuses", mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return([]models.CityStatus{changedTeaneck}, nil).Once()
	f.sheet.On("Communities", mock.Anything).Return([]models.Community{
		{Contact: "Rabbi Cohen", City: "Teaneck", ZipCode: "07666"},
	}, nil).Once()
	f.sheet.On("Subscribers", mock.Anything).Return([]models.Subscriber{
		{Phone: "201-555-0001", Cities: []string{"Teaneck"}},
	}, nil).Once()
	f.store.On("UpsertCityStatus", mock.Anything, mock.Anything).Return(nil).Times(2)

	f.times.On("Fetch", mock.Anything, "07666").Return(testTimes, nil).Once()
	f.weather.On("GetByZip", mock.Anything, "07666").
		Return(models.WeatherData{}, nil).Once()
	f.composer.On("Compose", "Teaneck", "Down", testTimes, mock.Anything).
		Return("The Teaneck Eruv is Down.", nil).Once()

	// One subscriber, one status change: exactly one send.
	f.sender.On("Send", mock.Anything, "+12015550001", "The Teaneck Eruv is Down.").
		Return("SM1", nil).Once()
	f.store.On("RecordDelivery", mock.Anything, mock.Anything).Return(nil).Once()
	f.sheet.On("UpdateLastNotified", mock.Anything, 2, "Down").Return(nil).Once()

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- f.notifier.RunOnce(context.Background())
	}()
	<-entered

	// The second trigger fails fast instead of running the same
	// un-acknowledged diff a second time.
	err := f.notifier.RunOnce(context.Background())
	require.ErrorIs(t, err, notifier.ErrPassInProgress)

	close(release)
	require.NoError(t, <-firstDone)
}

func Test_RunDetached(t *testing.T) {
	f := newFixture(t, notifier.Options{})

	done := make(chan struct{})
	f.sheet.On("Statuses", mock.Anything).Return([]models.CityStatus{
		{Row: 2, City: "Teaneck", Status: "Up", LastNotified: "Up"},
	}, nil).Once()
	f.sheet.On("Communities", mock.Anything).Return([]models.Community{}, nil).Once()
	f.sheet.On("Subscribers", mock.Anything).Return([]models.Subscriber{}, nil).Once()
	f.store.On("UpsertCityStatus", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { close(done) }).Return(nil).Once()

	require.NoError(t, f.notifier.RunDetached())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("detached pass never ran")
	}
}

func Test_RunDetached_RejectsOverlappingPass(t *testing.T) {
	f := newFixture(t, notifier.Options{})

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	f.sheet.On("Statuses", mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return([]models.CityStatus{}, nil).Once()
	f.sheet.On("Communities", mock.Anything).Return([]models.Community{}, nil).Once()
	f.sheet.On("Subscribers", mock.Anything).Run(func(mock.Arguments) {
		close(done)
	}).Return([]models.Subscriber{}, nil).Once()

	require.NoError(t, f.notifier.RunDetached())
	<-entered

	err := f.notifier.RunDetached()
	require.ErrorIs(t, err, notifier.ErrPassInProgress)

	close(release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("detached pass never finished")
	}
}

func Test_Stop_WaitsForRunningPass(t *testing.T) {
	f := newFixture(t, notifier.Options{Schedule: "* * * * * *"})

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	f.sheet.On("Statuses", mock.Anything).Run(func(mock.Arguments) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	}).Return([]models.CityStatus(nil), errors.New("load aborted"))

	f.notifier.Start(context.Background())
	<-entered

	stopped := make(chan struct{})
	go func() {
		f.notifier.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a pass was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop never returned after the pass finished")
	}
}
