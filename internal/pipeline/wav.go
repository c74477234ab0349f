package pipeline

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/logging"
)

// wavDump buffers transmitted PCM and writes it as a WAV file on close.
type wavDump struct {
	mu   sync.Mutex
	file *os.File
	pcm  []byte
}

func newWAVDump() (*wavDump, error) {
	file, err := logging.CreateDebugFile("audio", "wav")
	if err != nil {
		return nil, err
	}
	return &wavDump{file: file}, nil
}

func (d *wavDump) append(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pcm = append(d.pcm, frame...)
}

func (d *wavDump) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	werr := writePCM16WAV(d.file, d.pcm, audio.SampleRate, 1)
	cerr := d.file.Close()
	d.pcm = nil
	if werr != nil {
		return werr
	}
	return cerr
}

// writePCM16WAV writes raw little-endian PCM bytes with a minimal WAV header.
func writePCM16WAV(w io.Writer, pcm []byte, sampleRate int, channels int) error {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}
