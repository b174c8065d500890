package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/awesome-gocui/gocui"
	"github.com/gethiox/gyrostream/internal/pkg/display"
	"github.com/gethiox/gyrostream/internal/pkg/host"
	"github.com/gethiox/gyrostream/internal/pkg/logger"
	"github.com/gethiox/gyrostream/internal/pkg/sensor"
	"github.com/gethiox/gyrostream/internal/pkg/sink/mqtt"
	"github.com/gethiox/gyrostream/internal/pkg/utils"
	"github.com/logrusorgru/aurora"
)

var log = logger.GetLogger()

func FanOut[T any](input <-chan T) (<-chan T, <-chan T) {
	size := cap(input)
	if size == 0 {
		// at least size of 1 to prevent from output channels blocking by each other
		size = 1
	}
	var output1 = make(chan T, size)
	var output2 = make(chan T, size)

	go func() {
		for v := range input {
			output1 <- v
			output2 <- v
		}
		close(output1)
		close(output2)
	}()
	return output1, output2
}

// pump moves events from sinks into out until ctx is done, then closes out.
// Sinks keep their channel open, late sends are dropped by their done channel.
func pump(ctx context.Context, events <-chan sensor.StreamEvent, out chan<- sensor.StreamEvent) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// parseStreams accepts comma separated kinds or stream identifiers, empty or "all" selects every stream.
func parseStreams(s string) ([]sensor.Kind, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return sensor.Kinds, nil
	}

	var kinds []sensor.Kind
	var seen = make(map[sensor.Kind]bool)
	for _, part := range strings.Split(s, ",") {
		kind, ok := sensor.KindFromStreamID(strings.TrimSpace(part))
		if !ok {
			var err error
			kind, err = sensor.ParseKind(part)
			if err != nil {
				return nil, err
			}
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func handleSigs(wg *sync.WaitGroup, sigs <-chan os.Signal, quit <-chan struct{}, cancel func(), server *http.Server, g *gocui.Gui) {
	defer wg.Done()
	var counter int
	for {
		var sig os.Signal
		select {
		case <-quit:
			return
		case sig = <-sigs:
		}
		if counter > 0 {
			fmt.Println("Dirty exit")
			os.Exit(1)
		}
		log.Info(fmt.Sprintf("signal received: %v", sig), logger.Debug)
		cancel()
		if server != nil {
			err := server.Close()
			if err != nil {
				log.Info(fmt.Sprintf("failed to close server: %v", err), logger.Warning)
			}
		}
		if g != nil {
			g.Close()
		}
		counter++
	}
}

func runUI(cfg Config, ui bool, sigs chan os.Signal) *gocui.Gui {
	if !ui {
		return nil
	}

	g, err := GetCli()
	if err != nil {
		panic(err)
	}

	go func() {
		if err := g.MainLoop(); err != nil {
			if err != gocui.ErrQuit {
				panic(err)
			}
			select {
			case sigs <- syscall.SIGINT: // pretend that we received signal when exited from gui
			default:
			}
		}
	}()

	go func() {
		for {
			g.Update(Layout)
			time.Sleep(cfg.GyroStream.LogViewRate)
		}
	}()

	time.Sleep(time.Millisecond * 500) // waiting for view init
	return g
}

func runProfileServer(wg *sync.WaitGroup) *http.Server {
	if !*pprof {
		return nil
	}
	addr := "0.0.0.0:8080"
	log.Info(fmt.Sprintf("profiling enabled and hosted on %s", addr), logger.Info)
	server := &http.Server{Addr: addr, Handler: nil}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info(fmt.Sprintf("profiling server exited: %v", server.ListenAndServe()), logger.Info)
	}()
	return server
}

func printLogs(done chan<- struct{}) {
	defer close(done)
	if *silent {
		for range logger.Messages {
		}
		return
	}

	fmt.Printf("for nicer output use -ui flag\n")
	au := aurora.NewAurora(!*nocolor)
	for data := range logger.Messages {
		msg, err := unpack(data)
		if err != nil {
			fmt.Printf("%s\n", string(data))
			continue
		}
		m := prepareString(msg, au, -1, *logLevel)
		if m != "" {
			fmt.Printf("%s\n", m)
		}
	}
}

var (
	pprof      = flag.Bool("pprof", false, "runs web server for performance profiling (go tool pprof)")
	ui         = flag.Bool("ui", false, "engage debug ui")
	force256   = flag.Bool("256", false, "force 256 color mode")
	nocolor    = flag.Bool("nocolor", false, "disable color")
	silent     = flag.Bool("silent", false, "no output logging")
	configBase = flag.String("config", ".", "directory holding gyrostream-config")
	profileArg = flag.String("profile", "", "sensor profile to use, overrides the config file")
	streamsArg = flag.String("streams", "all", "comma separated streams to listen to, eg. \"gyroscope,rotation-stream\"")
	logLevel   = flag.Int("loglevel", 1,
		"logging level, each level enables additional information class (0-2, default: 1)\n"+
			"\navailable options:\n"+
			"0: general info (eg. profile and source state)\n"+
			"1: stream state changes (listen, cancel, unavailable sensors)\n"+
			"2: every delivered sample",
	)
	debug = flag.Bool("debug", false, "enable debug messages")
)

func main() {
	flag.Parse()
	*logLevel += 2
	if *debug {
		*logLevel = logger.DebugLvl
	}

	if *force256 {
		os.Setenv("TERM", "xterm-256color")
	}

	streams, err := parseStreams(*streamsArg)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(2)
	}

	err = createConfigDirectoryIfNeeded(templateConfig, *configBase)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}

	cfg, err := LoadConfig(filepath.Join(*configBase, configDir, configFile))
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
	if *profileArg != "" {
		cfg.GyroStream.Profile = *profileArg
	}
	log.Info(fmt.Sprintf("gyrostream config: %+v", cfg), logger.Debug)

	var sigs = make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())

	g := runUI(cfg, *ui && !*silent, sigs)

	var printerDone = make(chan struct{})
	if g != nil {
		close(printerDone)
		go logView(g, !*nocolor, *logLevel, cfg.GyroStream.LogBufferSize)
	} else {
		go printLogs(printerDone)
	}

	// this wait-group has to be propagated everywhere where usual logging appear
	wg := sync.WaitGroup{}

	server := runProfileServer(&wg)

	var quit = make(chan struct{})
	wg.Add(1)
	go handleSigs(&wg, sigs, quit, cancel, server, g)

	registry := sensor.NewRegistry(cfg.GyroStream.SamplingInterval)
	hub := host.NewHub()
	monitor := NewMonitor(registry)

	var events = make(chan sensor.StreamEvent, 64)
	var fanInput = make(chan sensor.StreamEvent, 64)
	go pump(ctx, events, fanInput)
	fan := utils.NewDynamicFanOut[sensor.StreamEvent](fanInput)

	_, monitorEvents, err := fan.SpawnOutput()
	if err != nil {
		panic(err)
	}
	wg.Add(1)
	go monitor.Run(&wg, monitorEvents)

	var emitter *mqtt.Emitter
	var disconnect = func() {}
	if cfg.MQTT.Enabled {
		e, client, err := mqtt.Connect(cfg.MQTT.Config)
		if err != nil {
			log.Info(err.Error(), logger.Warning)
		} else {
			emitter = e
			disconnect = func() { client.Disconnect(250) }

			// broker round trips must not hold back the monitor
			_, mqttEvents, err := fan.SpawnLossyOutput(256)
			if err != nil {
				panic(err)
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				emitter.Run(mqttEvents)
			}()
		}
	}

	wg.Add(1)
	dd := GenerateDisplayData(ctx, &wg, cfg.Screen, monitor)
	dd1, dd2 := FanOut(dd)

	if cfg.Screen.Enabled {
		wg.Add(1)
		go display.HandleDisplay(&wg, cfg.Screen, dd1)
	} else {
		go func() {
			for range dd1 {
			}
		}()
	}

	if g != nil {
		go overviewView(g, !*nocolor, monitor)
		go lcdView(g, dd2)
	} else {
		go func() {
			for range dd2 {
			}
		}()
	}

	runManager(ctx, cfg, *configBase, registry, hub, streams, events)

	log.Info("waiting...", logger.Debug)
	signal.Stop(sigs)
	close(quit)

	// closing logger can be safely invoked only when all internally running goroutines (that may emit logs) are done
	wg.Wait()
	disconnect()
	close(logger.Messages)
	<-printerDone

	fmt.Printf("gyrostream finished, samples delivered: %d\n", monitor.Total())
	if emitter != nil {
		stats := emitter.Stats()
		var published uint64
		for _, n := range stats.Published {
			published += n
		}
		fmt.Printf("mqtt: %d published, %d failed\n", published, stats.Errors)
	}
}
