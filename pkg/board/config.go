package board

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/robotalks/rtdev.go/pkg/uart"
)

// Config provides the options to assemble a Board.
type Config struct {
	// Name identifies the board on the diagnostic channel, defaults to
	// the machine ID.
	Name string
	// MQTTBrokerURL enables event publishing when set.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string
	// PCLK is the UART peripheral clock divided by 16.
	PCLK uint
	// SerialDevices binds UART ports to host serial devices, by index.
	SerialDevices []string
	// TerminalAddr serves websocket terminals on /uart/<n> when set.
	TerminalAddr string
	// EthHost is the local address the Ethernet stack listens on.
	EthHost string
	// CloseAfterWrite closes an Ethernet connection after each write.
	CloseAfterWrite bool
	// SDRoot is the host directory backing the file store.
	SDRoot string
	// CardDetectPin is the gpio of the card detect switch.
	CardDetectPin string
	// TouchSPI is the SPI port of the ADS7846, empty for a simulated panel.
	TouchSPI string
	// TouchPenPin is the pen interrupt gpio of the ADS7846.
	TouchPenPin string
	// Direct runs supervisor calls on the caller instead of a kernel
	// goroutine.
	Direct bool
}

var defaultConfig = Config{
	PCLK:    uart.DefaultPCLK,
	EthHost: "127.0.0.1",
	SDRoot:  "sdcard",
}

func init() {
	if val := os.Getenv("RTDEV_BOARD"); val != "" {
		defaultConfig.Name = val
	}
	if val := os.Getenv("RTDEV_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("RTDEV_PCLK"); val != "" {
		if n, err := strconv.ParseUint(val, 0, 32); err == nil {
			defaultConfig.PCLK = uint(n)
		}
	}
	if val := os.Getenv("RTDEV_SERIAL"); val != "" {
		defaultConfig.SerialDevices = strings.Split(val, ",")
	}
	if val := os.Getenv("RTDEV_TERMINAL_ADDR"); val != "" {
		defaultConfig.TerminalAddr = val
	}
	if val := os.Getenv("RTDEV_ETH_HOST"); val != "" {
		defaultConfig.EthHost = val
	}
	if val := os.Getenv("RTDEV_SD_ROOT"); val != "" {
		defaultConfig.SDRoot = val
	}
	if val := os.Getenv("RTDEV_SD_DETECT"); val != "" {
		defaultConfig.CardDetectPin = val
	}
	if val := os.Getenv("RTDEV_TOUCH_SPI"); val != "" {
		defaultConfig.TouchSPI = val
	}
	if val := os.Getenv("RTDEV_TOUCH_PEN"); val != "" {
		defaultConfig.TouchPenPin = val
	}
}

type listFlag struct {
	list *[]string
}

func (f listFlag) String() string {
	if f.list == nil {
		return ""
	}
	return strings.Join(*f.list, ",")
}

func (f listFlag) Set(val string) error {
	*f.list = strings.Split(val, ",")
	return nil
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Name, "board", defaultConfig.Name, "Board name, defaults to machine ID.")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL for diagnostic events.")
	flag.UintVar(&defaultConfig.PCLK, "pclk", defaultConfig.PCLK, "UART peripheral clock / 16.")
	flag.Var(listFlag{&defaultConfig.SerialDevices}, "serial", "Comma separated serial devices for UART0..3.")
	flag.StringVar(&defaultConfig.TerminalAddr, "terminal", defaultConfig.TerminalAddr, "Address to serve websocket UART terminals.")
	flag.StringVar(&defaultConfig.EthHost, "eth-host", defaultConfig.EthHost, "Local address of the Ethernet stack.")
	flag.BoolVar(&defaultConfig.CloseAfterWrite, "eth-close-after-write", defaultConfig.CloseAfterWrite, "Close Ethernet connection after each write.")
	flag.StringVar(&defaultConfig.SDRoot, "sd-root", defaultConfig.SDRoot, "Host directory backing the SD card.")
	flag.StringVar(&defaultConfig.CardDetectPin, "sd-detect", defaultConfig.CardDetectPin, "GPIO of SD card detect.")
	flag.StringVar(&defaultConfig.TouchSPI, "touch-spi", defaultConfig.TouchSPI, "SPI port of the touch controller.")
	flag.StringVar(&defaultConfig.TouchPenPin, "touch-pen", defaultConfig.TouchPenPin, "GPIO of the touch pen interrupt.")
	flag.BoolVar(&defaultConfig.Direct, "direct", defaultConfig.Direct, "Run supervisor calls without the kernel.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	conf.SerialDevices = append([]string(nil), defaultConfig.SerialDevices...)
	return &conf
}

// Validate checks the config.
func (c *Config) Validate() error {
	if len(c.SerialDevices) > uart.NumPorts {
		return fmt.Errorf("at most %d serial devices", uart.NumPorts)
	}
	if c.PCLK == 0 || uint64(c.PCLK) > 1<<32-1 {
		return fmt.Errorf("invalid pclk %d", c.PCLK)
	}
	return nil
}

// MustNewBoard creates a Board and fails on error.
func (c *Config) MustNewBoard() *Board {
	b, err := c.NewBoard()
	if err != nil {
		log.Fatalln(err)
	}
	return b
}
