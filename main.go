package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cyberia-pathway/api"
	"cyberia-pathway/config"
	"cyberia-pathway/instance"
	"cyberia-pathway/rpc"
	"cyberia-pathway/server"

	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	world := instance.NewWorld(cfg.TileSize)
	mapIDs, err := world.LoadMapsDir(cfg.MapsDir)
	if err != nil {
		log.Fatalf("load maps: %v", err)
	}
	if len(mapIDs) == 0 {
		log.Fatalf("no maps found in %s", cfg.MapsDir)
	}

	var opts []server.Option
	if _, ok := world.Map(config.DefaultMapID); !ok {
		opts = append(opts, server.WithDefaultMap(mapIDs[0]))
	}
	srv := server.New(world, cfg, opts...)
	go srv.Run(ctx)

	if cfg.WatchMaps {
		watcher, err := instance.NewMapWatcher(world, cfg.MapsDir, srv.OnMapReload)
		if err != nil {
			log.Printf("WARNING: map hot reload disabled: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	// gRPC
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(rpc.LoggingInterceptor))
	rpc.RegisterNavigatorServer(grpcServer, rpc.NewService(srv))
	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("ERROR: gRPC server: %v", err)
		}
	}()

	r := chi.NewRouter()
	if cfg.StaticDir != "" {
		static, err := server.StaticFileServer(cfg.StaticDir, "/index.html")
		if err != nil {
			log.Fatalf("static files: %v", err)
		}
		r.Handle("/*", static)
	}
	// Mount REST API under /api
	r.Mount("/api", api.NewAPIRouter(cfg, srv))
	r.HandleFunc("/ws", srv.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("ERROR: http shutdown: %v", err)
		}
		grpcServer.GracefulStop()
		srv.Close()
	}()

	log.Printf("Server started on %s (maps: %v)", cfg.HTTPAddr, mapIDs)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("ListenAndServe:", err)
	}
	<-stopped
}
