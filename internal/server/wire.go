package server

import (
	"farmmarket/internal/config"
	"farmmarket/internal/handler"
	"farmmarket/internal/infra/cache"
	"farmmarket/internal/infra/lock"
	infraRepo "farmmarket/internal/infra/repository"
	"farmmarket/internal/usecase"
	"farmmarket/internal/validator"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps はプロセス外のリソース。StatsCacheはnil可。
type Deps struct {
	DB         *gorm.DB
	Locker     lock.Locker
	StatsCache *cache.StatsCache
}

// Build はRepository→Usecase→Handlerを組み立ててルート登録済みのechoを返す。
func Build(cfg config.Config, logger *zap.Logger, d Deps) *echo.Echo {
	//Repository（GORM実装）
	tm := infraRepo.NewTxManagerGorm(d.DB)
	userRepo := infraRepo.NewUserGormRepository(d.DB)
	listingRepo := infraRepo.NewListingGormRepository(d.DB)
	varietyRepo := infraRepo.NewVarietyGormRepository(d.DB)
	statsRepo := infraRepo.NewStatsGormRepository(d.DB)
	auditRepo := infraRepo.NewAuditLogGormRepository(d.DB)

	locker := d.Locker
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}

	//Usecase
	guard := usecase.NewReservationGuard(tm, locker, cfg.LockTimeout, cfg.LockRetries)
	orderUC := usecase.NewOrderUsecase(tm, guard, cfg.AutoConfirmAfter, cfg.Location)
	listingUC := usecase.NewListingUsecase(tm, guard, listingRepo, varietyRepo).WithLocation(cfg.Location)
	var statsUC *usecase.StatsUsecase
	if d.StatsCache != nil {
		orderUC.WithStatsCache(d.StatsCache)
		listingUC.WithStatsCache(d.StatsCache)
		statsUC = usecase.NewStatsUsecase(statsRepo, d.StatsCache)
	} else {
		statsUC = usecase.NewStatsUsecase(statsRepo, nil)
	}
	messageUC := usecase.NewMessageUsecase(tm)
	varietyUC := usecase.NewVarietyUsecase(varietyRepo)
	authUC := usecase.NewAuthUsecase(cfg, userRepo, validator.NewAuthValidator(userRepo))

	//Handler
	e := New(cfg, logger)
	RegisterRoutes(e, cfg, userRepo, Handlers{
		Auth:    handler.NewAuthHandler(authUC),
		Listing: handler.NewListingHandler(listingUC),
		Order:   handler.NewOrderHandler(orderUC, messageUC),
		Catalog: handler.NewCatalogHandler(varietyUC, statsUC),
		Admin:   handler.NewAdminHandler(authUC, listingUC, orderUC, varietyUC, usecase.NewAuditUsecase(auditRepo)),
	})
	return e
}
