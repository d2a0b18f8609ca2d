package asr

import (
	"io"
	"os"
)

// pcmSource 从任意 io.Reader 读取原始PCM流并切成固定大小的帧。
// 采集端通常是 arecord/ffmpeg 之类的管道，输出 16kHz 单声道 16bit。
type pcmSource struct {
	reader    io.Reader
	closer    io.Closer
	frameSize int
}

// NewPCMSource 包装一个原始PCM流。frameSamples 为每帧采样数。
func NewPCMSource(r io.Reader, frameSamples int) FrameSource {
	if frameSamples <= 0 {
		frameSamples = 1024
	}
	src := &pcmSource{
		reader:    r,
		frameSize: frameSamples * 2, // 16bit 采样
	}
	if c, ok := r.(io.Closer); ok {
		src.closer = c
	}
	return src
}

// NewStdinSource 从标准输入读取PCM流
func NewStdinSource(frameSamples int) FrameSource {
	return NewPCMSource(os.Stdin, frameSamples)
}

func (s *pcmSource) ReadFrame() ([]byte, error) {
	frame := make([]byte, s.frameSize)
	n, err := io.ReadFull(s.reader, frame)
	if n > 0 {
		return frame[:n], nil
	}
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return nil, err
}

func (s *pcmSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
