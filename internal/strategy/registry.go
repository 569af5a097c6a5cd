package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a strategy with its default configuration
type Factory func() Strategy

var (
	registry     = make(map[string]Factory)
	registryLock sync.RWMutex
)

// Register adds a strategy under name, replacing any earlier registration
func Register(name string, factory Factory) {
	registryLock.Lock()
	defer registryLock.Unlock()
	registry[name] = factory
}

// Get creates the strategy registered under name
func Get(name string) (Strategy, error) {
	registryLock.RLock()
	factory, ok := registry[name]
	registryLock.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown strategy: %s (available: %v)", name, List())
	}
	return factory(), nil
}

// List returns the registered names, sorted
func List() []string {
	registryLock.RLock()
	defer registryLock.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MustGet is Get for names known at compile time
func MustGet(name string) Strategy {
	s, err := Get(name)
	if err != nil {
		panic(err)
	}
	return s
}

func init() {
	Register("b1", func() Strategy { return NewB1Strategy(DefaultB1Config()) })
	Register("hammer", func() Strategy { return NewHammerStrategy(DefaultHammerConfig()) })
	Register("macd-divergence", func() Strategy { return NewDivergenceStrategy(DefaultDivergenceConfig()) })
	Register("turtle", func() Strategy { return NewTurtleStrategy(DefaultTurtleConfig()) })
	Register("wyckoff", func() Strategy { return NewWyckoffStrategy(DefaultWyckoffConfig()) })
	Register("breakout-pullback", func() Strategy { return NewPullbackStrategy(DefaultPullbackConfig()) })
	Register("golden-cross", func() Strategy { return NewGoldenCrossStrategy(DefaultGoldenCrossConfig()) })
	Register("volume-surge", func() Strategy { return NewVolumeSurgeStrategy(DefaultVolumeSurgeConfig()) })
	Register("platform-breakout", func() Strategy { return NewPlatformStrategy(DefaultPlatformConfig()) })
	Register("sf", func() Strategy { return NewSFStrategy(DefaultSFConfig()) })
}

// Info describes a registered strategy
type Info struct {
	Name        string
	Description string
	MinBars     int
}

// GetInfo describes the strategy registered under name
func GetInfo(name string) (*Info, error) {
	s, err := Get(name)
	if err != nil {
		return nil, err
	}
	return &Info{
		Name:        name,
		Description: s.Description(),
		MinBars:     s.MinBars(),
	}, nil
}

// AllInfo describes every registered strategy, sorted by name
func AllInfo() []Info {
	names := List()
	infos := make([]Info, 0, len(names))
	for _, name := range names {
		if info, err := GetInfo(name); err == nil {
			infos = append(infos, *info)
		}
	}
	return infos
}
