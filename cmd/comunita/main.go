package main

import (
	"context"
	"flag"
	"log/slog"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/lacomunita/comunita/internal/config"
	"github.com/lacomunita/comunita/internal/infra/database"
	"github.com/lacomunita/comunita/internal/infra/repository"
	"github.com/lacomunita/comunita/internal/present/rest"
	"github.com/lacomunita/comunita/internal/present/rest/middleware"
	"github.com/lacomunita/comunita/internal/service"
	"github.com/lacomunita/comunita/internal/usecase"
)

func main() {
	configPath := flag.String("c", "config.yaml", "path to config file")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	db, err := database.NewPostgres(conf.Server.PostgresDsn)
	if err != nil {
		panic("failed to connect database")
	}

	err = database.MigratePostgres(db)
	if err != nil {
		panic("failed to migrate database")
	}

	rdb := database.NewRedis(conf.Server.RedisAddr, "", conf.Server.RedisDB)
	mc := database.NewMemcached(conf.Server.MemcachedAddr)

	if conf.Server.EnableTrace {
		shutdown, err := setupTrace(context.Background(), conf.Server.TraceEndpoint)
		if err != nil {
			panic("failed to set up tracing: " + err.Error())
		}
		defer shutdown(context.Background())
	}

	userRepo := repository.NewUserRepository(db)
	communityRepo := repository.NewCommunityRepository(db)
	groupRepo := repository.NewGroupRepository(db, mc)
	chatRepo := repository.NewChatRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	invitationRepo := repository.NewInvitationRepository(db, mc)

	authService := service.NewAuthService(conf.Auth.Secret, conf.Auth.Issuer)
	signalService := service.NewSignalService(rdb)

	userUC := usecase.NewUserUsecase(userRepo)
	communityUC := usecase.NewCommunityUsecase(communityRepo)
	groupUC := usecase.NewGroupUsecase(groupRepo)
	chatUC := usecase.NewChatUsecase(chatRepo)
	messageUC := usecase.NewMessageUsecase(messageRepo, signalService)
	invitationUC := usecase.NewInvitationUsecase(invitationRepo)

	handler := rest.NewHandler(
		userUC,
		communityUC,
		groupUC,
		chatUC,
		messageUC,
		invitationUC,
		authService,
		signalService,
	)

	authMiddleware := middleware.NewAuthMiddleware(authService)

	e := echo.New()
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware("comunita"))
	}
	e.Use(authMiddleware.IdentifyIdentity)

	handler.RegisterRoutes(e)

	slog.Info(
		"Starting server",
		slog.String("addr", conf.Server.ListenAddr),
		slog.String("module", "main"),
	)

	e.Logger.Fatal(e.Start(conf.Server.ListenAddr))
}

func setupTrace(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := sdkresource.New(ctx,
		sdkresource.WithAttributes(
			semconv.ServiceName("comunita"),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
