// The simulation service runs a fixed-timestep gravity simulation and streams
// tick diffs to WebSocket viewers. The process lives for exactly one run: the
// loop stops once the scene terminates or the process receives a signal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"threebody/sim/internal/config"
	"threebody/sim/internal/httpapi"
	"threebody/sim/internal/logging"
	"threebody/sim/internal/physics"
	"threebody/sim/internal/replay"
	"threebody/sim/internal/scene"
	"threebody/sim/internal/simulation"
	"threebody/sim/internal/state"
	"threebody/sim/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger setup failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("simulation service failed", logging.Error(err))
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	//1.- Resolve the scene: an explicit file wins, otherwise the built-in demo runs.
	var sc *scene.Scene
	if cfg.ScenePath != "" {
		loaded, err := scene.Load(cfg.ScenePath)
		if err != nil {
			return fmt.Errorf("load scene: %w", err)
		}
		sc = loaded
	} else {
		sc = scene.Default()
	}
	bodies, err := sc.Build()
	if err != nil {
		return fmt.Errorf("build scene %q: %w", sc.Name, err)
	}

	world, err := state.NewWorld(engineConfig(cfg.Physics), bodies)
	if err != nil {
		return err
	}
	director := scene.NewDirector(sc.Script, cfg.Physics.Speed)
	monitor := simulation.NewTickMonitor()
	logger.Info("scene ready",
		logging.String("scene", sc.Name),
		logging.Int("bodies", world.BodyCount()),
		logging.Int("cues", director.Pending()),
	)

	//2.- Replay capture is optional; without a directory the run is broadcast only.
	var recorder *replay.Recorder
	var bundle *replay.Writer
	if cfg.ReplayDir != "" {
		recorder, err = replay.NewRecorder(cfg.ReplayDir, nil)
		if err != nil {
			return fmt.Errorf("replay recorder: %w", err)
		}
		bundle, _, err = replay.NewWriter(cfg.ReplayDir, sc.Name, physicsParams(cfg.Physics), nil)
		if err != nil {
			return fmt.Errorf("replay writer: %w", err)
		}
		defer bundle.Close()
		logger.Info("replay capture enabled", logging.String("dir", cfg.ReplayDir))
	}

	hub := stream.NewHub(stream.Options{
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxClients:     cfg.MaxClients,
		PingInterval:   cfg.PingInterval,
		Handler: func(cmd stream.Command) error {
			return world.ApplyImpulse(cmd.Body, physics.Vec3{
				X: cmd.Impulse[0], Y: cmd.Impulse[1], Z: cmd.Impulse[2],
			})
		},
	})
	defer hub.Close()

	//3.- The tick path: fire due cues, advance, then fan the diff out everywhere.
	step := func(time.Duration) bool {
		begin := time.Now()
		if err := director.Fire(world.Tick(), world); err != nil {
			logger.Warn("scene cue failed", logging.Error(err))
		}
		diff := world.Step()
		if diff.HasChanges() {
			payload, err := json.Marshal(diff)
			if err != nil {
				logger.Error("tick diff encoding failed", logging.Error(err))
			} else {
				hub.Publish(payload)
				recorder.RecordTick(diff.Tick, payload)
				if bundle != nil {
					if err := bundle.AppendFrame(diff.Tick, payload); err != nil {
						logger.Warn("replay frame write failed", logging.Error(err))
					}
					for _, event := range diff.Events {
						data, err := json.Marshal(event)
						if err != nil {
							continue
						}
						if err := bundle.AppendEvent(event.Tick, string(event.Type), data); err != nil {
							logger.Warn("replay event write failed", logging.Error(err))
						}
					}
				}
			}
		}
		monitor.Observe(time.Since(begin))
		if world.Terminated() {
			logger.Info("simulation terminated", logging.Uint64("tick", world.Tick()))
			return false
		}
		return true
	}
	loop := simulation.NewLoop(1.0/cfg.Physics.Timestep, step)

	started := time.Now()
	health := &serviceHealth{hub: hub, world: world, started: started}
	limiter := httpapi.NewSlidingWindowLimiter(cfg.ReplayDumpWindow, cfg.ReplayDumpBurst, nil)
	handlers := httpapi.NewHandlerSet(httpapi.Options{
		Logger:      logger,
		Readiness:   health,
		Tick:        world.Tick,
		TickStats:   monitor.Snapshot,
		BodyCount:   world.BodyCount,
		Broadcasts:  hub.Broadcasts,
		ReplayStats: recorder.Snapshot,
		Replay: httpapi.ReplayDumperFunc(func(context.Context) (string, error) {
			if recorder == nil {
				return "", fmt.Errorf("replay recording disabled")
			}
			return recorder.Roll(sc.Name)
		}),
		AdminToken:  cfg.AdminToken,
		RateLimiter: limiter,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	handlers.Register(mux)
	server := &http.Server{
		Addr:    cfg.Address,
		Handler: logging.HTTPTraceMiddleware(logger)(mux),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loop.Start(ctx)
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("simulation service listening", logging.String("addr", cfg.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var failure error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case <-loop.Done():
		logger.Info("simulation loop finished")
	case failure = <-serverErr:
	}

	//4.- Tear down in dependency order: loop first so nothing publishes mid-close.
	cancel()
	loop.Stop()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil && failure == nil {
		failure = err
	}
	return failure
}

// serviceHealth adapts live service state to the readiness interface.
type serviceHealth struct {
	hub     *stream.Hub
	world   *state.World
	started time.Time
}

func (s *serviceHealth) ClientCount() int      { return s.hub.ClientCount() }
func (s *serviceHealth) StartupError() error   { return nil }
func (s *serviceHealth) Uptime() time.Duration { return time.Since(s.started) }
func (s *serviceHealth) Terminated() bool      { return s.world.Terminated() }

func engineConfig(p config.Physics) physics.Config {
	return physics.Config{
		Step:          p.Timestep,
		Speed:         p.Speed,
		GravityConst:  p.GravityConst,
		ExternalField: physics.Vec3{X: p.ExternalField[0], Y: p.ExternalField[1], Z: p.ExternalField[2]},
		MinDistanceSq: p.MinDistanceSq,
		Restitution:   p.Restitution,
		RestThreshold: p.RestThreshold,
		DecayLambda:   p.DecayLambda,
		SurfaceY:      p.SurfaceY,
		EscapeRadius:  p.EscapeRadius,
	}
}

// physicsParams flattens the engine tunables into the replay manifest map.
func physicsParams(p config.Physics) map[string]float64 {
	return map[string]float64{
		"timestep":        p.Timestep,
		"speed":           p.Speed,
		"gravity_const":   p.GravityConst,
		"field_x":         p.ExternalField[0],
		"field_y":         p.ExternalField[1],
		"field_z":         p.ExternalField[2],
		"min_distance_sq": p.MinDistanceSq,
		"restitution":     p.Restitution,
		"rest_threshold":  p.RestThreshold,
		"decay_lambda":    p.DecayLambda,
		"surface_y":       p.SurfaceY,
		"escape_radius":   p.EscapeRadius,
	}
}
