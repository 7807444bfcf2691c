// Package hw provides the glove sensor backends: periph.io drivers on an SBC,
// a serial-attached microcontroller, and a simulator.
package hw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/losdos/motionglove/internal/glove/flex"
	"github.com/losdos/motionglove/internal/glove/orientation"
)

// PeriphConfig selects the buses and pins of an SBC-hosted glove.
type PeriphConfig struct {
	SPIDevice  string `help:"SPI device of the MPU9250" default:"/dev/spidev0.0" env:"MOTIONGLOVE_HW_SPI_DEVICE"`
	CSPin      string `help:"Chip-select GPIO of the MPU9250" default:"GPIO8" env:"MOTIONGLOVE_HW_CS_PIN"`
	AccelRange byte   `help:"MPU9250 accelerometer range (0=2g,1=4g,2=8g,3=16g)" default:"0" env:"MOTIONGLOVE_HW_ACCEL_RANGE"`
	GyroRange  byte   `help:"MPU9250 gyroscope range (0=250,1=500,2=1000,3=2000 deg/s)" default:"0" env:"MOTIONGLOVE_HW_GYRO_RANGE"`
	Calibrate  bool   `help:"Run the MPU9250 gyro/accel bias calibration at startup" default:"true" negatable:"" env:"MOTIONGLOVE_HW_CALIBRATE"`
	I2CBus     string `name:"i2c-bus" help:"I2C bus of the ADS1115 flex ADC (empty for the first bus)" env:"MOTIONGLOVE_HW_I2C_BUS"`
	ADCAddress uint16 `help:"I2C address of the ADS1115" default:"72" env:"MOTIONGLOVE_HW_ADC_ADDRESS"`
	FlexVref   string `help:"Flex divider supply voltage; maps to full scale" default:"3.3V" env:"MOTIONGLOVE_HW_FLEX_VREF"`
	TapPin     string `help:"GPIO sensing thumb-index contact (empty to disable)" default:"GPIO17" env:"MOTIONGLOVE_HW_TAP_PIN"`
	LEDPin     string `help:"GPIO driving the link status LED (empty to disable)" default:"GPIO27" env:"MOTIONGLOVE_HW_LED_PIN"`
}

// FlexFullScale is the code reported at the supply voltage. It matches the
// 12-bit ADC the Schmitt thresholds were tuned on.
const FlexFullScale = 4095

var (
	accelLSBPerG   = [4]float64{16384, 8192, 4096, 2048}
	gyroLSBPerDegS = [4]float64{131, 65.5, 32.8, 16.4}
)

// Periph owns the periph.io handles of one glove.
type Periph struct {
	IMU  *PeriphIMU
	Flex *PeriphFlex
	Tap  *PeriphTap // nil when disabled
	LED  *PeriphLED // nil when disabled

	bus i2c.BusCloser
}

// OpenPeriph initialises the host drivers and opens every configured device.
func OpenPeriph(cfg PeriphConfig, logger *slog.Logger) (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	if int(cfg.AccelRange) >= len(accelLSBPerG) || int(cfg.GyroRange) >= len(gyroLSBPerDegS) {
		return nil, fmt.Errorf("invalid IMU range accel=%d gyro=%d", cfg.AccelRange, cfg.GyroRange)
	}

	imu, err := openIMU(cfg, logger)
	if err != nil {
		return nil, err
	}

	var vref physic.ElectricPotential
	if err := vref.Set(cfg.FlexVref); err != nil {
		return nil, fmt.Errorf("flex vref %q: %w", cfg.FlexVref, err)
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open I2C bus %q: %w", cfg.I2CBus, err)
	}
	fl, err := openFlex(bus, cfg.ADCAddress, vref)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}

	p := &Periph{IMU: imu, Flex: fl, bus: bus}
	if cfg.TapPin != "" {
		pin := gpioreg.ByName(cfg.TapPin)
		if pin == nil {
			p.Close()
			return nil, fmt.Errorf("tap pin %q not found", cfg.TapPin)
		}
		if err := pin.In(gpio.PullDown, gpio.NoEdge); err != nil {
			p.Close()
			return nil, fmt.Errorf("tap pin %s: %w", cfg.TapPin, err)
		}
		p.Tap = &PeriphTap{pin: pin}
	}
	if cfg.LEDPin != "" {
		pin := gpioreg.ByName(cfg.LEDPin)
		if pin == nil {
			p.Close()
			return nil, fmt.Errorf("LED pin %q not found", cfg.LEDPin)
		}
		p.LED = &PeriphLED{pin: pin, logger: logger}
		p.LED.Set(false)
	}
	logger.Info("Periph sensors ready", "spi", cfg.SPIDevice, "i2c", cfg.I2CBus, "tap", cfg.TapPin, "led", cfg.LEDPin)
	return p, nil
}

// Close halts the ADC pins and releases the I2C bus.
func (p *Periph) Close() error {
	var errs []error
	if p.Flex != nil {
		errs = append(errs, p.Flex.halt())
	}
	if p.bus != nil {
		errs = append(errs, p.bus.Close())
	}
	return errors.Join(errs...)
}

func openIMU(cfg PeriphConfig, logger *slog.Logger) (*PeriphIMU, error) {
	cs := gpioreg.ByName(cfg.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU CS pin %q not found", cfg.CSPin)
	}
	tr, err := mpu9250.NewSpiTransport(cfg.SPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU SPI transport (%s): %w", cfg.SPIDevice, err)
	}
	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("IMU device creation: %w", err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("IMU initialization: %w", err)
	}
	if err := dev.SetAccelRange(cfg.AccelRange); err != nil {
		return nil, fmt.Errorf("IMU set accel range: %w", err)
	}
	if err := dev.SetGyroRange(cfg.GyroRange); err != nil {
		return nil, fmt.Errorf("IMU set gyro range: %w", err)
	}
	if cfg.Calibrate {
		if err := dev.Calibrate(); err != nil {
			logger.Warn("IMU calibration failed", "error", err)
		} else {
			logger.Info("IMU calibration complete")
		}
	}
	return &PeriphIMU{
		dev:        dev,
		accelScale: 1000 / accelLSBPerG[cfg.AccelRange],
		gyroScale:  1 / gyroLSBPerDegS[cfg.GyroRange],
	}, nil
}

// PeriphIMU reads an MPU9250 and converts raw counts to milli-g and deg/s.
type PeriphIMU struct {
	dev        *mpu9250.MPU9250
	accelScale float64
	gyroScale  float64
}

func (m *PeriphIMU) ReadMotion(ctx context.Context) (orientation.Sample, error) {
	var s orientation.Sample
	readers := [6]func() (int16, error){
		m.dev.GetAccelerationX, m.dev.GetAccelerationY, m.dev.GetAccelerationZ,
		m.dev.GetRotationX, m.dev.GetRotationY, m.dev.GetRotationZ,
	}
	for i, read := range readers {
		raw, err := read()
		if err != nil {
			return orientation.Sample{}, fmt.Errorf("IMU axis %d: %w", i, err)
		}
		if i < 3 {
			s.Accel[i] = scale(raw, m.accelScale)
		} else {
			s.Gyro[i-3] = scale(raw, m.gyroScale)
		}
	}
	return s, ctx.Err()
}

func scale(raw int16, f float64) int16 {
	v := float64(raw) * f
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	}
	return int16(v)
}

func openFlex(bus i2c.Bus, addr uint16, vref physic.ElectricPotential) (*PeriphFlex, error) {
	opts := ads1x15.DefaultOpts
	if addr != 0 {
		opts.I2cAddress = addr
	}
	adc, err := ads1x15.NewADS1115(bus, &opts)
	if err != nil {
		return nil, fmt.Errorf("ADS1115 at 0x%02x: %w", addr, err)
	}
	f := &PeriphFlex{vref: vref}
	channels := [flex.NumFingers]ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2}
	for i, ch := range channels {
		pin, err := adc.PinForChannel(ch, vref, 860*physic.Hertz, ads1x15.SaveEnergy)
		if err != nil {
			_ = f.halt()
			return nil, fmt.Errorf("ADS1115 channel %d: %w", i, err)
		}
		f.pins[i] = pin
	}
	return f, nil
}

// PeriphFlex reads the three flex dividers on ADS1115 channels 0..2.
type PeriphFlex struct {
	pins [flex.NumFingers]analog.PinADC
	vref physic.ElectricPotential
}

func (f *PeriphFlex) Read(ctx context.Context) (flex.Readings, error) {
	var r flex.Readings
	for i, pin := range f.pins {
		s, err := pin.Read()
		if err != nil {
			return flex.Readings{}, fmt.Errorf("flex channel %d: %w", i, err)
		}
		r[i] = voltsToCode(s.V, f.vref)
	}
	return r, ctx.Err()
}

func voltsToCode(v, vref physic.ElectricPotential) uint16 {
	if v <= 0 || vref <= 0 {
		return 0
	}
	if v >= vref {
		return FlexFullScale
	}
	return uint16(int64(v) * FlexFullScale / int64(vref))
}

func (f *PeriphFlex) halt() error {
	var errs []error
	for _, pin := range f.pins {
		if pin != nil {
			errs = append(errs, pin.Halt())
		}
	}
	return errors.Join(errs...)
}

// PeriphTap reads the contact pad GPIO; high means touching.
type PeriphTap struct {
	pin gpio.PinIO
}

func (t *PeriphTap) Tap(ctx context.Context) (bool, error) {
	return t.pin.Read() == gpio.High, ctx.Err()
}

// PeriphLED drives the status LED.
type PeriphLED struct {
	mu     sync.Mutex
	pin    gpio.PinIO
	logger *slog.Logger
}

// Set switches the LED. Failures are logged; the LED is cosmetic.
func (l *PeriphLED) Set(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.pin.Out(gpio.Level(on)); err != nil {
		l.logger.Warn("LED write failed", "pin", l.pin.Name(), "error", err)
	}
}
