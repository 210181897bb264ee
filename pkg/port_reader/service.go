package port_reader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/NotCoffee418/pulse_bridge/pkg/sml"
	"github.com/jacobsa/go-serial/serial"
	"github.com/sigurn/crc16"
	"go.uber.org/zap"
)

var ErrTooManyErrors = errors.New("too many consecutive payload errors")

// maxBuffered bounds the SML stream buffer when no start sequence ever shows up.
const maxBuffered = 64 * 1024

var arcTable = crc16.MakeTable(crc16.CRC16_ARC)

// NewSerialReader reads payloads from an optical reading head.
func NewSerialReader(port string, baudrate uint, framing Framing, logger *zap.Logger) *SerialReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	reader := &SerialReader{
		port:      port,
		baudrate:  baudrate,
		framing:   framing,
		log:       logger.Named("serial"),
		maxErrors: 10,
	}
	reader.open = reader.openPort
	return reader
}

// Run opens the port and hands every complete payload to handle until ctx is
// cancelled, the port closes or too many payloads in a row fail.
func (p *SerialReader) Run(ctx context.Context, handle func([]byte) error) error {
	port, err := p.open()
	if err != nil {
		return err
	}
	defer port.Close()
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()

	p.log.Info("reading serial port",
		zap.String("port", p.port),
		zap.Uint("baudrate", p.baudrate),
		zap.Stringer("framing", p.framing))

	err = p.Read(ctx, port, handle)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Read consumes r until EOF. It is Run without the port handling.
func (p *SerialReader) Read(ctx context.Context, r io.Reader, handle func([]byte) error) error {
	errs := &errorBudget{max: p.maxErrors, log: p.log}
	if p.framing == FramingPlaintext {
		return p.readTelegrams(ctx, r, handle, errs)
	}
	return p.readSml(ctx, r, handle, errs)
}

func (p *SerialReader) openPort() (io.ReadWriteCloser, error) {
	options := serial.OpenOptions{
		PortName:        p.port,
		BaudRate:        p.baudrate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	}

	port, err := serial.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

func (p *SerialReader) readSml(ctx context.Context, r io.Reader, handle func([]byte) error, errs *errorBudget) error {
	stream := sml.NewStreamReader()
	buf := make([]byte, 512)
	for ctx.Err() == nil {
		n, err := r.Read(buf)
		if n > 0 {
			stream.Add(buf[:n])
			for {
				frame, ferr := stream.GetFrame()
				if frame == nil {
					break
				}
				if ferr != nil {
					if err := errs.fail(ferr); err != nil {
						return err
					}
					continue
				}
				if err := errs.result(handle(frame.Bytes())); err != nil {
					return err
				}
			}
			if stream.Len() > maxBuffered {
				p.log.Warn("no sml start sequence, dropping buffer", zap.Int("bytes", stream.Len()))
				stream.Clear()
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *SerialReader) readTelegrams(ctx context.Context, r io.Reader, handle func([]byte) error, errs *errorBudget) error {
	var buffer strings.Builder
	var inTelegram bool
	reader := bufio.NewReader(r)

	for ctx.Err() == nil {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if strings.HasPrefix(line, "/") {
			buffer.Reset()
			buffer.WriteString(line)
			inTelegram = true
			continue
		}
		if !inTelegram {
			continue
		}
		buffer.WriteString(line)
		if !strings.HasPrefix(strings.TrimSpace(line), "!") {
			continue
		}

		inTelegram = false
		telegram := buffer.String()
		if !validTelegramCrc(telegram) {
			if err := errs.fail(fmt.Errorf("telegram crc mismatch")); err != nil {
				return err
			}
			continue
		}
		if err := errs.result(handle([]byte(telegram))); err != nil {
			return err
		}
	}
	return nil
}

// validTelegramCrc checks the CRC16/ARC after '!' when the meter sends one.
// Heads in IEC mode send none, which is accepted.
func validTelegramCrc(telegram string) bool {
	idx := strings.LastIndex(telegram, "!")
	if idx < 0 {
		return false
	}
	given := strings.TrimSpace(telegram[idx+1:])
	if given == "" {
		return true
	}
	if len(given) != 4 {
		return false
	}
	calc := crc16.Checksum([]byte(telegram[:idx+1]), arcTable)
	return strings.EqualFold(given, fmt.Sprintf("%04X", calc))
}

// errorBudget tolerates a run of failed payloads before giving up.
type errorBudget struct {
	max         int
	consecutive int
	log         *zap.Logger
}

func (b *errorBudget) result(err error) error {
	if err == nil {
		b.consecutive = 0
		return nil
	}
	return b.fail(err)
}

func (b *errorBudget) fail(err error) error {
	b.consecutive++
	b.log.Warn("payload failed",
		zap.Int("consecutive", b.consecutive),
		zap.Int("max", b.max),
		zap.Error(err))
	if b.consecutive >= b.max {
		return errors.Join(ErrTooManyErrors, err)
	}
	return nil
}
