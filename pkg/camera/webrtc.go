package camera

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
)

const (
	signallingTimeout = 10 * time.Second
	decodeInterval    = 200 * time.Millisecond
	maxGOPBytes       = 8 << 20
)

// WebRTCSource receives H264 video from a producer registered with a
// GStreamer webrtcsink signalling server.
type WebRTCSource struct {
	// SignallingURL is the ws:// address of the signalling server.
	SignallingURL string

	// ProducerName selects the producer whose meta "name" matches.
	// Empty picks the first producer listed.
	ProducerName string

	Config Config
	Logger *slog.Logger
}

// Open negotiates a receive-only session and waits for the first decoded frame.
func (s *WebRTCSource) Open(ctx context.Context) (Stream, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	st := &webrtcStream{
		source: s,
		buf:    newFrameBuffer(),
		logger: logger.With("component", "camera.webrtc", "signalling", s.SignallingURL),
	}

	if err := st.connect(ctx); err != nil {
		st.Close()
		return nil, err
	}

	if err := st.buf.waitFirst(ctx, s.Config.FirstFrameTimeout); err != nil {
		st.Close()
		return nil, fmt.Errorf("webrtc camera: %w", err)
	}
	return st, nil
}

type webrtcStream struct {
	source *WebRTCSource
	logger *slog.Logger
	buf    *frameBuffer

	ws      *websocket.Conn
	wsMutex sync.Mutex
	pc      *webrtc.PeerConnection

	myPeerID   string
	producerID string
	sessionID  atomic.Value // string

	closed atomic.Bool

	// ended is set once signalling stops; the last decoded frame is stale.
	ended atomic.Bool
}

func (c *webrtcStream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: signallingTimeout}

	var err error
	c.ws, _, err = dialer.DialContext(ctx, c.source.SignallingURL, nil)
	if err != nil {
		return fmt.Errorf("webrtc camera: signalling connect failed: %w", err)
	}

	if err := c.waitForWelcome(); err != nil {
		return fmt.Errorf("webrtc camera: welcome failed: %w", err)
	}
	if err := c.findProducer(); err != nil {
		return fmt.Errorf("webrtc camera: find producer failed: %w", err)
	}
	if err := c.createPeerConnection(); err != nil {
		return fmt.Errorf("webrtc camera: peer connection failed: %w", err)
	}
	if err := c.writeJSON(map[string]string{"type": "startSession", "peerId": c.producerID}); err != nil {
		return fmt.Errorf("webrtc camera: start session failed: %w", err)
	}

	c.logger.Info("webrtc session requested", "peer", c.myPeerID, "producer", c.producerID)
	go c.handleSignalling()
	return nil
}

func (c *webrtcStream) readMessage(timeout time.Duration) ([]byte, error) {
	c.ws.SetReadDeadline(time.Now().Add(timeout))
	_, msg, err := c.ws.ReadMessage()
	c.ws.SetReadDeadline(time.Time{})
	return msg, err
}

func (c *webrtcStream) writeJSON(v any) error {
	c.wsMutex.Lock()
	defer c.wsMutex.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *webrtcStream) waitForWelcome() error {
	msg, err := c.readMessage(signallingTimeout)
	if err != nil {
		return err
	}

	var welcome struct {
		Type   string `json:"type"`
		PeerID string `json:"peerId"`
	}
	if err := json.Unmarshal(msg, &welcome); err != nil {
		return err
	}
	if welcome.Type != "welcome" {
		return fmt.Errorf("expected welcome, got %s", welcome.Type)
	}
	c.myPeerID = welcome.PeerID
	return nil
}

func (c *webrtcStream) findProducer() error {
	if err := c.writeJSON(map[string]string{"type": "list"}); err != nil {
		return err
	}

	msg, err := c.readMessage(signallingTimeout)
	if err != nil {
		return err
	}

	var listResp struct {
		Type      string `json:"type"`
		Producers []struct {
			ID   string            `json:"id"`
			Meta map[string]string `json:"meta"`
		} `json:"producers"`
	}
	if err := json.Unmarshal(msg, &listResp); err != nil {
		return err
	}

	for _, p := range listResp.Producers {
		if c.source.ProducerName == "" || p.Meta["name"] == c.source.ProducerName {
			c.producerID = p.ID
			return nil
		}
	}
	return fmt.Errorf("producer %q not found in %d producers", c.source.ProducerName, len(listResp.Producers))
}

func (c *webrtcStream) createPeerConnection() error {
	var err error
	c.pc, err = webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}

	if _, err = c.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.logger.Info("track received", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go c.handleVideoTrack(track)
		}
	})

	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate != nil {
			c.sendICECandidate(candidate)
		}
	})

	c.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Debug("peer connection state", "state", state.String())
	})

	return nil
}

func (c *webrtcStream) session() string {
	id, _ := c.sessionID.Load().(string)
	return id
}

func (c *webrtcStream) handleSignalling() {
	defer c.ended.Store(true)

	for !c.closed.Load() {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Warn("signalling error", "error", err)
			}
			return
		}

		var baseMsg struct {
			Type      string `json:"type"`
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(msg, &baseMsg); err != nil {
			continue
		}

		switch baseMsg.Type {
		case "sessionStarted":
			c.sessionID.Store(baseMsg.SessionID)
		case "peer":
			c.handlePeerMessage(msg)
		case "endSession":
			c.logger.Info("producer ended session")
			return
		}
	}
}

type peerMessage struct {
	SDP *struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	} `json:"sdp"`
	ICE *struct {
		Candidate     string  `json:"candidate"`
		SDPMid        *string `json:"sdpMid"`
		SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
	} `json:"ice"`
}

func (c *webrtcStream) handlePeerMessage(msg []byte) {
	var pm peerMessage
	if err := json.Unmarshal(msg, &pm); err != nil {
		c.logger.Debug("bad peer message", "error", err)
		return
	}

	if pm.SDP != nil && pm.SDP.Type == "offer" {
		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: pm.SDP.SDP}
		if err := c.pc.SetRemoteDescription(offer); err != nil {
			c.logger.Warn("SetRemoteDescription failed", "error", err)
			return
		}
		answer, err := c.pc.CreateAnswer(nil)
		if err != nil {
			c.logger.Warn("CreateAnswer failed", "error", err)
			return
		}
		if err := c.pc.SetLocalDescription(answer); err != nil {
			c.logger.Warn("SetLocalDescription failed", "error", err)
			return
		}
		c.writeJSON(map[string]any{
			"type":      "peer",
			"sessionId": c.session(),
			"sdp":       map[string]string{"type": answer.Type.String(), "sdp": answer.SDP},
		})
	}

	if pm.ICE != nil {
		c.pc.AddICECandidate(webrtc.ICECandidateInit{
			Candidate:     pm.ICE.Candidate,
			SDPMid:        pm.ICE.SDPMid,
			SDPMLineIndex: pm.ICE.SDPMLineIndex,
		})
	}
}

func (c *webrtcStream) sendICECandidate(candidate *webrtc.ICECandidate) {
	sessionID := c.session()
	if sessionID == "" {
		return
	}

	init := candidate.ToJSON()
	c.writeJSON(map[string]any{
		"type":      "peer",
		"sessionId": sessionID,
		"ice": map[string]any{
			"candidate":     init.Candidate,
			"sdpMid":        init.SDPMid,
			"sdpMLineIndex": init.SDPMLineIndex,
		},
	})
}

// handleVideoTrack depacketizes H264 into an Annex-B group of pictures
// that always starts at the last SPS, and decodes it periodically.
func (c *webrtcStream) handleVideoTrack(track *webrtc.TrackRemote) {
	var depack codecs.H264Packet
	var gop bytes.Buffer
	haveKeyframe := false
	lastDecode := time.Now()

	for !c.closed.Load() {
		var pkt *rtp.Packet
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}

		nals, err := depack.Unmarshal(pkt.Payload)
		if err != nil || len(nals) == 0 {
			continue
		}

		types := nalTypes(nals)
		if types[nalSPS] {
			gop.Reset()
			haveKeyframe = false
		}
		if types[nalIDR] {
			haveKeyframe = true
		}
		if !haveKeyframe && !types[nalSPS] && !types[nalPPS] {
			continue
		}
		gop.Write(nals)

		if gop.Len() > maxGOPBytes {
			gop.Reset()
			haveKeyframe = false
			continue
		}

		if pkt.Marker && haveKeyframe && time.Since(lastDecode) >= decodeInterval {
			if frame, err := decodeLastFrame(gop.Bytes(), c.source.Config.Quality); err == nil {
				c.buf.store(frame)
			} else {
				c.logger.Debug("h264 decode failed", "error", err)
			}
			lastDecode = time.Now()
		}
	}
}

const (
	nalIDR = 5
	nalSPS = 7
	nalPPS = 8
)

// nalTypes reports which NAL unit types appear in an Annex-B buffer.
func nalTypes(annexB []byte) map[int]bool {
	types := make(map[int]bool)
	for i := 0; i+3 < len(annexB); i++ {
		if annexB[i] == 0 && annexB[i+1] == 0 && annexB[i+2] == 1 {
			types[int(annexB[i+3]&0x1F)] = true
			i += 3
		}
	}
	return types
}

// decodeLastFrame runs ffmpeg over an H264 elementary stream and returns
// the last picture as JPEG.
func decodeLastFrame(h264 []byte, quality int) ([]byte, error) {
	// mjpeg qscale runs 2 (best) to 31; map from a 1-100 quality.
	q := 2 + (100-quality)*29/100

	cmd := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "h264", "-i", "pipe:0",
		"-f", "image2pipe", "-c:v", "mjpeg", "-q:v", strconv.Itoa(q), "pipe:1")
	cmd.Stdin = bytes.NewReader(h264)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return lastJPEG(out)
}

// lastJPEG returns the final image in a concatenated MJPEG stream.
func lastJPEG(stream []byte) ([]byte, error) {
	start := bytes.LastIndex(stream, []byte{0xFF, 0xD8, 0xFF})
	if start < 0 {
		return nil, ErrNoFrame
	}
	return stream[start:], nil
}

// CaptureJPEG returns the most recently decoded frame.
func (c *webrtcStream) CaptureJPEG() ([]byte, error) {
	if c.closed.Load() || c.ended.Load() {
		return nil, ErrClosed
	}
	return c.buf.latest()
}

// Close tears down the peer connection and signalling socket.
func (c *webrtcStream) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.pc != nil {
		c.pc.Close()
	}
	if c.ws != nil {
		c.ws.Close()
	}
	return nil
}
