package scanner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	suitelib "github.com/stretchr/testify/suite"

	"github.com/srg/trackctl/internal/device"
	goble "github.com/srg/trackctl/internal/device/go-ble"
	"github.com/srg/trackctl/internal/testutils"
	"github.com/srg/trackctl/internal/testutils/mocks"
	"github.com/srg/trackctl/scanner"
)

const vehicleService = "ae563286-b114-49ae-aab3-3cc37bbfe46a"

type ScannerTestSuite struct {
	suitelib.Suite

	logger          *logrus.Logger
	radio           *mocks.MockRadio
	originalFactory func() (goble.Radio, error)
}

func (suite *ScannerTestSuite) SetupTest() {
	suite.logger = testutils.NewTestHelper(suite.T()).Logger

	suite.radio = &mocks.MockRadio{
		Advertisements: []blelib.Advertisement{
			testutils.CreateMockAdvertisement("RC-Tank", "AA:BB:CC:DD:EE:FF", -45).
				WithServices(vehicleService).Build(),
			testutils.CreateMockAdvertisement("Headphones", "11:22:33:44:55:66", -30).
				WithServices("110b").Build(),
			testutils.CreateMockAdvertisement("", "99:88:77:66:55:44", -80).
				WithOverflowServices(vehicleService).Build(),
			// Second advertisement of the tank, stronger signal.
			testutils.CreateMockAdvertisement("RC-Tank", "AA:BB:CC:DD:EE:FF", -40).
				WithServices(vehicleService).Build(),
		},
	}
	suite.radio.On("Scan", mock.Anything, false).Return(nil)

	suite.originalFactory = goble.DeviceFactory
	goble.DeviceFactory = func() (goble.Radio, error) { return suite.radio, nil }
}

func (suite *ScannerTestSuite) TearDownTest() {
	goble.DeviceFactory = suite.originalFactory
}

func (suite *ScannerTestSuite) newScanner() *scanner.Scanner {
	s, err := scanner.NewScanner(goble.NewCentral(0, suite.logger), suite.logger)
	suite.Require().NoError(err)
	return s
}

func (suite *ScannerTestSuite) TestNewScanner() {
	suite.Run("creates scanner with nil logger", func() {
		s, err := scanner.NewScanner(goble.NewCentral(0, nil), nil)
		suite.NoError(err)
		suite.NotNil(s)
	})

	suite.Run("rejects missing central", func() {
		_, err := scanner.NewScanner(nil, suite.logger)
		suite.Error(err)
	})
}

func (suite *ScannerTestSuite) TestDefaultScanOptions() {
	opts := scanner.DefaultScanOptions()

	suite.Equal(10*time.Second, opts.Duration)
	suite.Empty(opts.Service)
	suite.Nil(opts.AllowList)
	suite.Nil(opts.BlockList)
}

// TestScannerFiltering verifies the service, allow and block filters.
//
// GOAL: Verify only wanted advertisers are listed, strongest signal first
//
// TEST SCENARIO: Radio reports two vehicles and headphones → each filter combination yields the expected addresses
func (suite *ScannerTestSuite) TestScannerFiltering() {
	tests := []struct {
		name     string
		opts     scanner.ScanOptions
		expected []string
	}{
		{
			name:     "includes every advertiser without filters",
			opts:     scanner.ScanOptions{},
			expected: []string{"11:22:33:44:55:66", "AA:BB:CC:DD:EE:FF", "99:88:77:66:55:44"},
		},
		{
			name:     "keeps vehicles only with service filter",
			opts:     scanner.ScanOptions{Service: vehicleService},
			expected: []string{"AA:BB:CC:DD:EE:FF", "99:88:77:66:55:44"},
		},
		{
			name:     "excludes device on block list",
			opts:     scanner.ScanOptions{Service: vehicleService, BlockList: []string{"AA:BB:CC:DD:EE:FF"}},
			expected: []string{"99:88:77:66:55:44"},
		},
		{
			name:     "includes device on allow list only",
			opts:     scanner.ScanOptions{AllowList: []string{"11:22:33:44:55:66"}},
			expected: []string{"11:22:33:44:55:66"},
		},
		{
			name:     "unknown service matches nothing",
			opts:     scanner.ScanOptions{Service: "1234"},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			opts := tt.opts
			opts.Duration = 50 * time.Millisecond

			peers, err := suite.newScanner().Scan(context.Background(), &opts, nil)
			suite.Require().NoError(err, "a scan ended by its duration MUST succeed")

			addrs := make([]string, 0, len(peers))
			for _, p := range peers {
				addrs = append(addrs, p.Address)
			}
			suite.Equal(tt.expected, addrs)
		})
	}
}

func (suite *ScannerTestSuite) TestRepeatedAdvertisementUpdates() {
	s := suite.newScanner()
	var phases []string

	peers, err := s.Scan(context.Background(), &scanner.ScanOptions{
		Duration: 50 * time.Millisecond,
		Service:  vehicleService,
	}, func(phase string) { phases = append(phases, phase) })
	suite.Require().NoError(err)
	suite.Require().Len(peers, 2)

	suite.Equal(-40, peers[0].RSSI, "the latest advertisement MUST win")
	suite.Equal("RC-Tank", peers[0].Label())
	suite.Equal("99:88:77:66:55:44", peers[1].Label(), "nameless peers MUST fall back to the address")
	suite.Equal([]string{"Scanning", "Processing results"}, phases)

	var types []scanner.DeviceEventType
	for len(types) < 3 {
		select {
		case ev := <-s.Events():
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			suite.FailNow("missing scanner events")
		}
	}
	suite.Equal([]scanner.DeviceEventType{scanner.EventNew, scanner.EventNew, scanner.EventUpdated}, types)
}

func (suite *ScannerTestSuite) TestScanErrors() {
	suite.Run("radio failure", func() {
		radio := &mocks.MockRadio{}
		radio.On("Scan", mock.Anything, false).Return(errors.New("bluetooth is turned off"))
		goble.DeviceFactory = func() (goble.Radio, error) { return radio, nil }

		_, err := suite.newScanner().Scan(context.Background(), &scanner.ScanOptions{Duration: time.Second}, nil)
		suite.ErrorIs(err, device.ErrBluetoothOff)
	})

	suite.Run("caller cancellation", func() {
		goble.DeviceFactory = func() (goble.Radio, error) { return suite.radio, nil }
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := suite.newScanner().Scan(ctx, &scanner.ScanOptions{Duration: time.Second}, nil)
		suite.ErrorIs(err, context.Canceled)
	})
}

func TestScannerTestSuite(t *testing.T) {
	suitelib.Run(t, new(ScannerTestSuite))
}
