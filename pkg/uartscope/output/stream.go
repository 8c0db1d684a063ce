package output

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/norasector/uartscope/pkg/frame"
	"github.com/norasector/uartscope/pkg/uartscope/config"
)

const MeasurementStream = "uartscope.stream"

// ErrDatagramTooLarge is returned for samples whose encoding overflows the uint16
// length prefix.
var ErrDatagramTooLarge = errors.New("stream: datagram too large")

// Stream sends every sample as a length-prefixed protobuf Struct datagram to each
// destination. Send failures are logged and counted, never returned.
type Stream struct {
	conn      *net.UDPConn
	destAddrs []*net.UDPAddr
	layout    string
	metrics   api.WriteAPI
	logger    zerolog.Logger
	msgBuf    bytes.Buffer
}

// NewStream resolves dests and opens the sending socket.
func NewStream(dests []config.OutputDestination, layout string, metrics api.WriteAPI, logger zerolog.Logger) (*Stream, error) {
	destAddrs := make([]*net.UDPAddr, 0, len(dests))
	for _, dest := range dests {
		ips, err := net.LookupIP(dest.Host)
		if err != nil {
			return nil, err
		}
		if len(ips) == 0 {
			return nil, fmt.Errorf("no IPs returned for %s", dest.Host)
		}

		destAddr := &net.UDPAddr{IP: ips[0], Port: dest.Port}
		destAddrs = append(destAddrs, destAddr)
		logger.Info().IPAddr("dest_ip", destAddr.IP).Int("port", dest.Port).Msg("stream output starting")
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, err
	}
	return &Stream{
		conn:      conn,
		destAddrs: destAddrs,
		layout:    layout,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// EncodeSample builds the protobuf message for rec.
func EncodeSample(layout string, rec frame.SampleRecord) (*structpb.Struct, error) {
	fields := make(map[string]interface{}, len(rec.Fields))
	for _, f := range rec.Fields {
		fields[f.Name] = f.Value
	}
	return structpb.NewStruct(map[string]interface{}{
		"layout":    layout,
		"index":     rec.Index,
		"elapsed_s": rec.ElapsedSeconds(),
		"time":      rec.Time.UTC().Format(time.RFC3339Nano),
		"fields":    fields,
	})
}

// DecodeDatagram strips the length prefix and unmarshals the message.
func DecodeDatagram(b []byte) (*structpb.Struct, error) {
	if len(b) < 2 {
		return nil, errors.New("short datagram")
	}
	size := int(binary.LittleEndian.Uint16(b))
	if len(b)-2 < size {
		return nil, fmt.Errorf("datagram holds %d of %d bytes", len(b)-2, size)
	}
	msg := &structpb.Struct{}
	if err := proto.Unmarshal(b[2:2+size], msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Stream) Write(rec frame.SampleRecord) error {
	pb, err := EncodeSample(s.layout, rec)
	if err != nil {
		return fmt.Errorf("encode sample %d: %w", rec.Index, err)
	}
	encoded, err := proto.Marshal(pb)
	if err != nil {
		return fmt.Errorf("marshal sample %d: %w", rec.Index, err)
	}

	if len(encoded) > math.MaxUint16 {
		return fmt.Errorf("%w: sample %d encodes to %d bytes", ErrDatagramTooLarge, rec.Index, len(encoded))
	}

	s.msgBuf.Reset()
	if err := binary.Write(&s.msgBuf, binary.LittleEndian, uint16(len(encoded))); err != nil {
		return err
	}
	s.msgBuf.Write(encoded)

	sent, dropped, bytesWritten := 0, 0, 0
	for _, destAddr := range s.destAddrs {
		n, err := s.conn.WriteToUDP(s.msgBuf.Bytes(), destAddr)
		if err != nil {
			s.logger.Error().Err(err).Str("dest", destAddr.String()).Msg("error writing")
			dropped++
			continue
		}
		bytesWritten += n
		sent++
	}

	s.metrics.WritePoint(influxdb2.NewPoint(MeasurementStream,
		map[string]string{
			"layout": s.layout,
		},
		map[string]interface{}{
			"bytes_written":  bytesWritten,
			"encoded_length": len(encoded),
			"sent":           sent,
			"dropped":        dropped,
		}, time.Now()))
	return nil
}

func (s *Stream) Flush() error { return nil }

func (s *Stream) Close() error {
	return s.conn.Close()
}
