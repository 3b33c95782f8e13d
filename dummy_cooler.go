package aquad

import (
	"sync"

	"github.com/mdouchement/logger"
)

// A DummyCooler should only be used for dev & tests.
type DummyCooler struct {
	sync sync.Mutex
	pwms map[Channel]int
	log  logger.Logger
}

func NewDummyCooler() *DummyCooler {
	n := 8
	c := &DummyCooler{
		pwms: make(map[Channel]int, n),
	}
	for i := range n {
		c.pwms[Channel(i)] = 0
	}

	return c
}

func (c *DummyCooler) SetLogger(l logger.Logger) {
	c.log = l
}

func (c *DummyCooler) Close() error {
	return nil
}

func (c *DummyCooler) Speeds() (map[Channel]uint16, error) {
	c.sync.Lock()
	defer c.sync.Unlock()

	speeds := make(map[Channel]uint16, len(c.pwms))
	for k, pwm := range c.pwms {
		speeds[k] = uint16(1500 * float32(pwm) / 100)
	}

	return speeds, nil
}

func (c *DummyCooler) SetPWM(ch Channel, pwm int) (int, error) {
	c.sync.Lock()
	defer c.sync.Unlock()

	c.pwms[ch] = pwm
	return pwm, nil
}
