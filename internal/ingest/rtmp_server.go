package ingest

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	flv "github.com/yutopp/go-flv"
	flvtag "github.com/yutopp/go-flv/tag"
	"github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"
)

const timestampLayout = "20060102_150405"

// Finalize is invoked once per published stream after its FLV file is
// closed, with the path to the finished recording.
type Finalize func(path string)

// RTMPServer accepts publisher connections and records each published
// stream to an FLV file on disk. It is the networked capture path: an
// external encoder pushes frames instead of the in-process sampler
// pulling them.
type RTMPServer struct {
	server    *rtmp.Server
	addr      string
	streamKey string
	outputDir string
	finalize  Finalize
}

// NewRTMPServer creates a new RTMP server instance. streamKey is the
// only publishing name accepted; anything else is rejected at publish.
func NewRTMPServer(addr, streamKey, outputDir string, finalize Finalize) *RTMPServer {
	return &RTMPServer{
		addr:      addr,
		streamKey: streamKey,
		outputDir: outputDir,
		finalize:  finalize,
	}
}

// Start initializes and starts the RTMP server. It blocks until the
// listener fails.
func (s *RTMPServer) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	config := &rtmp.ServerConfig{
		OnConnect: func(conn net.Conn) (io.ReadWriteCloser, *rtmp.ConnConfig) {
			handler := &rtmpHandler{
				streamKey: s.streamKey,
				outputDir: s.outputDir,
				finalize:  s.finalize,
				conn:      conn,
			}
			return conn, &rtmp.ConnConfig{
				Handler: handler,
			}
		},
	}
	s.server = rtmp.NewServer(config)

	log.Printf("Starting RTMP server on %s", listener.Addr())
	return s.server.Serve(listener)
}

func (s *RTMPServer) Close() error {
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}

type rtmpHandler struct {
	rtmp.DefaultHandler
	streamKey string
	outputDir string
	finalize  Finalize
	conn      net.Conn

	outputPath string
	file       *os.File
	enc        *flv.Encoder
}

func (h *rtmpHandler) OnPublish(ctx *rtmp.StreamContext, timestamp uint32, cmd *rtmpmsg.NetStreamPublish) error {
	log.Printf("RTMP: Publish request for stream key: %s", cmd.PublishingName)

	if cmd.PublishingName == "" {
		return errors.New("rtmp: publishing name is required")
	}
	if cmd.PublishingName != h.streamKey {
		return errors.New("rtmp: invalid stream key")
	}

	path := filepath.Join(h.outputDir, fmt.Sprintf("recording_%s.flv", time.Now().Format(timestampLayout)))
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "rtmp: failed to create recording file")
	}

	enc, err := flv.NewEncoder(file, flv.FlagsAudio|flv.FlagsVideo)
	if err != nil {
		file.Close()
		os.Remove(path)
		return errors.Wrap(err, "rtmp: failed to initialize flv encoder")
	}

	h.outputPath = path
	h.file = file
	h.enc = enc
	return nil
}

func (h *rtmpHandler) OnSetDataFrame(timestamp uint32, data *rtmpmsg.NetStreamSetDataFrame) error {
	if h.enc == nil {
		return nil
	}

	r := bytes.NewReader(data.Payload)
	var script flvtag.ScriptData
	if err := flvtag.DecodeScriptData(r, &script); err != nil {
		log.Printf("RTMP: failed to decode script data: %v", err)
		return nil // metadata is best-effort
	}

	if err := h.enc.Encode(&flvtag.FlvTag{
		TagType:   flvtag.TagTypeScriptData,
		Timestamp: timestamp,
		Data:      &script,
	}); err != nil {
		log.Printf("RTMP: failed to write script data: %v", err)
	}
	return nil
}

func (h *rtmpHandler) OnAudio(timestamp uint32, payload io.Reader) error {
	if h.enc == nil {
		return nil // not publishing yet
	}

	var audio flvtag.AudioData
	if err := flvtag.DecodeAudioData(payload, &audio); err != nil {
		return err
	}

	flvBody := new(bytes.Buffer)
	if err := flvtag.EncodeAudioData(flvBody, &audio); err != nil {
		return err
	}
	audio.Data = flvBody

	return h.enc.Encode(&flvtag.FlvTag{
		TagType:   flvtag.TagTypeAudio,
		Timestamp: timestamp,
		Data:      &audio,
	})
}

func (h *rtmpHandler) OnVideo(timestamp uint32, payload io.Reader) error {
	if h.enc == nil {
		return nil // not publishing yet
	}

	var video flvtag.VideoData
	if err := flvtag.DecodeVideoData(payload, &video); err != nil {
		return err
	}

	flvBody := new(bytes.Buffer)
	if err := flvtag.EncodeVideoData(flvBody, &video); err != nil {
		return err
	}
	video.Data = flvBody

	return h.enc.Encode(&flvtag.FlvTag{
		TagType:   flvtag.TagTypeVideo,
		Timestamp: timestamp,
		Data:      &video,
	})
}

func (h *rtmpHandler) OnClose() {
	log.Printf("RTMP: Connection closed from %s", h.conn.RemoteAddr().String())

	if h.file == nil {
		return
	}
	if err := h.file.Close(); err != nil {
		log.Printf("RTMP: failed to close recording file: %v", err)
	}
	h.enc = nil
	h.file = nil

	log.Printf("RTMP: Publisher for stream key '%s' has disconnected, finalized %s", h.streamKey, h.outputPath)
	if h.finalize != nil {
		h.finalize(h.outputPath)
	}
}
