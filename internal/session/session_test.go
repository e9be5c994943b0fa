package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srg/trackctl/internal/command"
	"github.com/srg/trackctl/internal/device"
	"github.com/srg/trackctl/internal/eventbus"
	"github.com/srg/trackctl/internal/motion"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type labelRecorder struct {
	mu     sync.Mutex
	labels []string
}

func (r *labelRecorder) OnDeviceLabelChanged(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels = append(r.labels, label)
}

func (r *labelRecorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.labels) == 0 {
		return ""
	}
	return r.labels[len(r.labels)-1]
}

type SessionSuite struct {
	suite.Suite

	central *fakeCentral
	labels  *labelRecorder
	bus     *eventbus.Bus
	logger  *logrus.Logger
	mgr     *Manager
}

func (s *SessionSuite) SetupTest() {
	s.logger = logrus.New()
	s.logger.SetOutput(io.Discard)

	s.central = &fakeCentral{peers: []device.Peer{vehicle("01")}}
	s.labels = &labelRecorder{}
	s.bus = eventbus.New(64)
	s.mgr = nil
}

func (s *SessionSuite) TearDownTest() {
	if s.mgr != nil {
		s.mgr.Close()
	}
	s.bus.Close()
}

func (s *SessionSuite) start(mutate ...func(*Options)) *Manager {
	opts := DefaultOptions()
	opts.RescanDelay = 10 * time.Millisecond
	opts.LabelSink = s.labels
	opts.Events = s.bus
	for _, fn := range mutate {
		fn(&opts)
	}

	s.mgr = New(s.central, opts, s.logger)
	s.Require().NoError(s.mgr.Start(context.Background()))
	return s.mgr
}

func (s *SessionSuite) waitState(want State) {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	s.Require().NoError(s.mgr.WaitForState(ctx, want), "session MUST reach %s", want)
}

func allChannels() []string {
	return []string{DefaultLeftUUID, DefaultRightUUID, DefaultGearUUID}
}

// TestConnectAndWrite verifies the happy path from Start to an acknowledged write.
//
// GOAL: Verify the session scans, connects, resolves all channels and delivers writes
//
// TEST SCENARIO: Start with one advertising vehicle → reach Ready → write forward on left → byte lands on the left characteristic
func (s *SessionSuite) TestConnectAndWrite() {
	link := newFakeLink("01", allChannels()...)
	s.central.queue(connectResult{link: link})

	mgr := s.start()
	s.waitState(Ready)

	s.Equal("01", mgr.CurrentDeviceLabel())
	s.Eventually(func() bool { return s.labels.last() == "01" }, waitFor, tick, "label MUST be dispatched to the sink")
	for _, ch := range command.Channels {
		s.True(mgr.Resolved(ch), "channel %s MUST be resolved", ch)
	}

	mgr.Write(command.Left, command.ValueForward)
	s.Eventually(func() bool {
		return string(link.written(DefaultLeftUUID)) == "\x31"
	}, waitFor, tick, "forward MUST reach the left characteristic")
	s.Eventually(func() bool { return mgr.Stats().Sent == 1 }, waitFor, tick)
}

// TestWriteBeforeReadyIsDropped verifies writes are never queued before resolution.
//
// GOAL: Verify Write is a silent no-op while no handle is resolved
//
// TEST SCENARIO: Write before Start → counted as dropped → nothing delivered after Ready
func (s *SessionSuite) TestWriteBeforeReadyIsDropped() {
	link := newFakeLink("01", allChannels()...)
	s.central.queue(connectResult{link: link})

	mgr := New(s.central, DefaultOptions(), s.logger)
	s.mgr = mgr

	s.NotPanics(func() { mgr.Write(command.Left, command.ValueForward) })
	s.Equal(uint64(1), mgr.Stats().Dropped)
	s.Equal(Idle, mgr.State())
	s.Equal(NoDeviceLabel, mgr.CurrentDeviceLabel())

	s.Require().NoError(mgr.Start(context.Background()))
	s.waitState(Ready)

	time.Sleep(20 * time.Millisecond)
	s.Empty(link.written(DefaultLeftUUID), "dropped writes MUST NOT be replayed after resolution")
}

// TestDisconnectClearsHandles verifies link loss handling and recovery.
//
// GOAL: Verify disconnect clears every handle, writes become no-ops, and a full reconnect restores them
//
// TEST SCENARIO: Ready → drop link → label "-----" and writes dropped → second link resolves → writes land on the new link only
func (s *SessionSuite) TestDisconnectClearsHandles() {
	first := newFakeLink("01", allChannels()...)
	second := newFakeLink("02", allChannels()...)
	s.central.queue(connectResult{link: first})

	sub := s.bus.Subscribe(eventbus.TopicSessionState)
	defer sub.Unsubscribe()

	mgr := s.start()
	s.waitState(Ready)

	// No connect result is queued yet, so the session keeps scanning.
	first.drop()
	s.Eventually(func() bool { return !mgr.Resolved(command.Left) }, waitFor, tick, "handles MUST be cleared on disconnect")
	s.Eventually(func() bool { return mgr.CurrentDeviceLabel() == NoDeviceLabel }, waitFor, tick)
	s.Eventually(func() bool { return s.labels.last() == NoDeviceLabel }, waitFor, tick)
	s.waitState(Scanning)

	before := mgr.Stats().Dropped
	mgr.Write(command.Left, command.ValueReverse)
	s.Equal(before+1, mgr.Stats().Dropped, "write after disconnect MUST be dropped")

	s.central.queue(connectResult{link: second})
	s.waitState(Ready)
	s.Equal("02", mgr.CurrentDeviceLabel())

	mgr.Write(command.Left, command.ValueForward)
	s.Eventually(func() bool { return string(second.written(DefaultLeftUUID)) == "\x31" }, waitFor, tick)
	s.Empty(first.written(DefaultLeftUUID), "the lost link MUST NOT receive writes")

	// The state stream MUST have passed through Disconnected on its way back to Scanning.
	sawDisconnected := false
	timeout := time.After(waitFor)
	for !sawDisconnected {
		select {
		case v := <-sub.C:
			if sc, ok := v.(StateChange); ok && sc.To == Disconnected {
				sawDisconnected = true
			}
		case <-timeout:
			s.FailNow("no Disconnected state change published")
		}
	}
}

// TestPerChannelFIFO verifies per-channel ordering under interleaved writes.
//
// GOAL: Verify each channel's writes reach the link in submission order
//
// TEST SCENARIO: Interleave left and right writes with a slow link → each characteristic sees its own sequence unchanged
func (s *SessionSuite) TestPerChannelFIFO() {
	link := newFakeLink("01", allChannels()...)
	link.writeDelay = time.Millisecond
	s.central.queue(connectResult{link: link})

	mgr := s.start(func(o *Options) { o.WriteQueueDepth = 64 })
	s.waitState(Ready)

	leftSeq := []byte{0x31, 0x30, 0x32, 0x30, 0x31, 0x32, 0x30, 0x31}
	rightSeq := []byte{0x32, 0x31, 0x30, 0x32, 0x30, 0x31, 0x31, 0x30}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, v := range leftSeq {
			mgr.Write(command.Left, v)
		}
	}()
	go func() {
		defer wg.Done()
		for _, v := range rightSeq {
			mgr.Write(command.Right, v)
		}
	}()
	wg.Wait()

	s.Eventually(func() bool {
		return len(link.written(DefaultLeftUUID)) == len(leftSeq) && len(link.written(DefaultRightUUID)) == len(rightSeq)
	}, waitFor, tick)
	s.Equal(leftSeq, link.written(DefaultLeftUUID), "left writes MUST preserve submission order")
	s.Equal(rightSeq, link.written(DefaultRightUUID), "right writes MUST preserve submission order")
}

// TestPartialResolution verifies a subset of channels is enough for Ready.
//
// GOAL: Verify Ready is reached with only some channels resolved, and missing channels stay no-ops
//
// TEST SCENARIO: Link exposes only the left characteristic plus an unknown one → Ready → right writes dropped, left writes delivered
func (s *SessionSuite) TestPartialResolution() {
	link := newFakeLink("01", DefaultLeftUUID, "0000ffe1-0000-1000-8000-00805f9b34fb")
	s.central.queue(connectResult{link: link})

	mgr := s.start()
	s.waitState(Ready)

	s.True(mgr.Resolved(command.Left))
	s.False(mgr.Resolved(command.Right))
	s.False(mgr.Resolved(command.Gear))

	dropped := mgr.Stats().Dropped
	mgr.Write(command.Right, command.ValueForward)
	s.Equal(dropped+1, mgr.Stats().Dropped)

	mgr.Write(command.Left, command.ValueReverse)
	s.Eventually(func() bool { return string(link.written(DefaultLeftUUID)) == "\x32" }, waitFor, tick)
}

// TestServiceMissingStaysDegraded verifies the session does not advance without the control service.
//
// GOAL: Verify a link lacking the control service stays in ResolvingServices with writes dropped
//
// TEST SCENARIO: Connected device lists only the battery service → state stays ResolvingServices → writes counted as dropped
func (s *SessionSuite) TestServiceMissingStaysDegraded() {
	link := newFakeLink("01", allChannels()...)
	link.services = []string{"180f"}
	s.central.queue(connectResult{link: link})

	mgr := s.start()
	s.waitState(ResolvingServices)

	time.Sleep(30 * time.Millisecond)
	s.Equal(ResolvingServices, mgr.State())

	mgr.Write(command.Gear, command.EncodeGear(3))
	s.Equal(uint64(1), mgr.Stats().Dropped)
	s.Equal("01", mgr.CurrentDeviceLabel())
}

// TestStaleLinkLossIgnored verifies a loss report from a replaced link is discarded.
//
// GOAL: Verify link loss tagged with an older link generation leaves the current link untouched
//
// TEST SCENARIO: Ready on 01 → drop → Ready on 02 → replay loss of 01's generation → state stays Ready on 02 and writes still land
func (s *SessionSuite) TestStaleLinkLossIgnored() {
	first := newFakeLink("01", allChannels()...)
	second := newFakeLink("02", allChannels()...)
	s.central.queue(connectResult{link: first})

	mgr := s.start()
	s.waitState(Ready)

	first.drop()
	s.waitState(Scanning)
	s.central.queue(connectResult{link: second})
	s.waitState(Ready)

	mgr.post(evLinkLost{gen: 1})
	time.Sleep(30 * time.Millisecond)

	s.Equal(Ready, mgr.State(), "a stale loss MUST NOT tear down the current link")
	s.Equal("02", mgr.CurrentDeviceLabel())
	s.True(mgr.Resolved(command.Left))
	s.False(second.closed.Load())

	mgr.Write(command.Right, command.ValueReverse)
	s.Eventually(func() bool { return string(second.written(DefaultRightUUID)) == "\x32" }, waitFor, tick)
}

// TestDegradedLinkRecovers verifies a link stuck without the control service still recovers.
//
// GOAL: Verify losing a degraded link rescans and reaches Ready on the next vehicle
//
// TEST SCENARIO: 01 lacks the service → ResolvingServices → 01 drops → 02 resolves → Ready labelled "02"
func (s *SessionSuite) TestDegradedLinkRecovers() {
	degraded := newFakeLink("01", allChannels()...)
	degraded.services = []string{"180f"}
	healthy := newFakeLink("02", allChannels()...)
	s.central.queue(connectResult{link: degraded})

	mgr := s.start()
	s.waitState(ResolvingServices)

	s.central.queue(connectResult{link: healthy})
	degraded.drop()
	s.waitState(Ready)

	s.Equal("02", mgr.CurrentDeviceLabel())
	s.Eventually(func() bool { return s.labels.last() == "02" }, waitFor, tick)
	s.True(degraded.closed.Load(), "the degraded link MUST be closed")
	s.Len(s.central.dialedPeers(), 2)

	mgr.Write(command.Gear, command.EncodeGear(4))
	s.Eventually(func() bool { return string(healthy.written(DefaultGearUUID)) == "\x34" }, waitFor, tick)
}

// TestQueueOverflowKeepsFinalStop verifies a burst on a slow link never loses the last command.
//
// GOAL: Verify overwrite-oldest queuing drops early commands and delivers the final stop last
//
// TEST SCENARIO: Queue depth 2, 20ms per write → 20 alternating drive commands then stop → some dropped, stop written last
func (s *SessionSuite) TestQueueOverflowKeepsFinalStop() {
	link := newFakeLink("01", allChannels()...)
	link.writeDelay = 20 * time.Millisecond
	s.central.queue(connectResult{link: link})

	mgr := s.start(func(o *Options) { o.WriteQueueDepth = 2 })
	s.waitState(Ready)

	const burst = 20
	for i := 0; i < burst; i++ {
		v := command.ValueForward
		if i%2 == 1 {
			v = command.ValueReverse
		}
		mgr.Write(command.Left, v)
	}
	mgr.Write(command.Left, command.ValueStop)

	s.Eventually(func() bool {
		st := mgr.Stats()
		return st.Sent+st.Dropped == burst+1
	}, waitFor, tick, "every command MUST be either sent or dropped")

	written := link.written(DefaultLeftUUID)
	s.Require().NotEmpty(written)
	s.Equal(command.ValueStop, written[len(written)-1], "the final stop MUST land last")
	s.Less(len(written), burst+1)
	s.Positive(mgr.Stats().Dropped)
}

// TestConnectFailureRescans verifies failed dials return to scanning.
//
// GOAL: Verify a connect error re-issues discovery instead of retrying the dial directly
//
// TEST SCENARIO: First connect fails → new scan started → second connect succeeds → Ready
func (s *SessionSuite) TestConnectFailureRescans() {
	link := newFakeLink("01", allChannels()...)
	s.central.queue(
		connectResult{err: device.ErrTimeout},
		connectResult{link: link},
	)

	s.start()
	s.waitState(Ready)

	s.GreaterOrEqual(s.central.scans.Load(), int32(2), "a failed connect MUST trigger a new scan")
	s.Len(s.central.dialedPeers(), 2)
}

// TestFirstMatchOnly verifies no ranking among candidates.
//
// GOAL: Verify only the first matching advertisement is dialed and unrelated devices are ignored
//
// TEST SCENARIO: Scan reports an unrelated device, then vehicles 01 and 02 → only 01 is dialed
func (s *SessionSuite) TestFirstMatchOnly() {
	s.central.peers = []device.Peer{
		{Address: "11:22:33:44:55:66", Name: "Headphones", Services: []string{"110b"}},
		vehicle("01"),
		vehicle("02"),
	}
	s.central.queue(connectResult{link: newFakeLink("01", allChannels()...)})

	s.start()
	s.waitState(Ready)

	dialed := s.central.dialedPeers()
	s.Require().Len(dialed, 1, "exactly one candidate MUST be dialed")
	s.Equal("01", dialed[0].Name)
}

// TestScanErrorRescansAfterDelay verifies recovery from a refused scan.
//
// GOAL: Verify a failing scan is re-issued after RescanDelay
//
// TEST SCENARIO: First scan fails with bluetooth off → second scan succeeds → Ready
func (s *SessionSuite) TestScanErrorRescansAfterDelay() {
	s.central.scanErrs = []error{device.ErrBluetoothOff}
	s.central.queue(connectResult{link: newFakeLink("01", allChannels()...)})

	s.start()
	s.waitState(Ready)
	s.Equal(int32(2), s.central.scans.Load())
}

// TestWriteFailureCounted verifies negative acknowledgments are observable.
//
// GOAL: Verify failed writes are counted and published but never surface to the caller
//
// TEST SCENARIO: Link rejects writes → Write returns normally → Stats.Failed increments and a WriteResult with the error is published
func (s *SessionSuite) TestWriteFailureCounted() {
	link := newFakeLink("01", allChannels()...)
	link.writeErr = errors.New("att: write not permitted")
	s.central.queue(connectResult{link: link})

	sub := s.bus.Subscribe(eventbus.TopicWriteResult)
	defer sub.Unsubscribe()

	mgr := s.start()
	s.waitState(Ready)

	mgr.Write(command.Gear, command.EncodeGear(2))
	s.Eventually(func() bool { return mgr.Stats().Failed == 1 }, waitFor, tick)

	select {
	case v := <-sub.C:
		res, ok := v.(WriteResult)
		s.Require().True(ok)
		s.Equal(command.Gear, res.Channel)
		s.Equal(byte(0x32), res.Value)
		s.Error(res.Err)
	case <-time.After(waitFor):
		s.FailNow("no WriteResult published")
	}
}

// TestLifecycle verifies Start/Close guards.
//
// GOAL: Verify double Start fails, Close is idempotent and tears the link down, and Start after Close fails
//
// TEST SCENARIO: Start → Start again errors → Ready → Close twice → link closed, state Idle → Start errors
func (s *SessionSuite) TestLifecycle() {
	link := newFakeLink("01", allChannels()...)
	s.central.queue(connectResult{link: link})

	mgr := s.start()
	s.ErrorIs(mgr.Start(context.Background()), ErrAlreadyStarted)
	s.waitState(Ready)

	mgr.Close()
	mgr.Close()

	s.True(link.closed.Load(), "Close MUST close the link")
	s.Equal(Idle, mgr.State())
	s.Equal(NoDeviceLabel, mgr.CurrentDeviceLabel())
	s.False(mgr.Resolved(command.Left))
	s.ErrorIs(mgr.Start(context.Background()), ErrClosed)
}

// TestEndToEndScenario drives the session through the motion layer.
//
// GOAL: Verify threshold crossing, release and a clamped gear decrement produce the expected bytes
//
// TEST SCENARIO: Stick crosses upper threshold → 0x31 on left; release → 0x30 on left; gear at 1 decremented → 0x31 on gear
func (s *SessionSuite) TestEndToEndScenario() {
	link := newFakeLink("01", allChannels()...)
	s.central.queue(connectResult{link: link})

	mgr := s.start()
	s.waitState(Ready)

	stick := motion.NewStick(command.Left, mgr, motion.DefaultStickOptions(), s.logger)
	gear := motion.NewGear(mgr, nil, motion.DefaultGearOptions(), s.logger)

	for i := 0; i < 20 && stick.State() != motion.MovingForward; i++ {
		stick.OnSample(100)
	}
	s.Require().Equal(motion.MovingForward, stick.State())
	stick.OnSample(100)
	stick.OnRelease()

	gear.Decrement()
	s.Equal(1, gear.Current())

	s.Eventually(func() bool {
		return string(link.written(DefaultLeftUUID)) == "\x31\x30" && string(link.written(DefaultGearUUID)) == "\x31"
	}, waitFor, tick, "left MUST see forward then stop; gear MUST see gear 1 re-sent")
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "resolving-channels", ResolvingChannels.String())
	assert.Equal(t, "state(42)", State(42).String())
}

func TestWaitForState_ContextDone(t *testing.T) {
	mgr := New(&fakeCentral{}, DefaultOptions(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, mgr.WaitForState(ctx, Ready), context.DeadlineExceeded)
	require.NoError(t, mgr.WaitForState(context.Background(), Idle))
}
