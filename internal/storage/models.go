package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridiantrade/core/internal/domain"
)

// The GORM models below mirror internal/domain's entities with explicit
// foreign keys and no embedded pointers between them (REDESIGN FLAGS:
// avoid embedded-struct cycles), matching domain.go's own "entities
// reference each other by id only" rule. decimal.Decimal implements
// sql.Scanner/driver.Valuer already, so it needs no custom GORM type.

type portfolioModel struct {
	ID               string `gorm:"primaryKey"`
	Name             string
	BaseCurrency     string
	TotalCapital     decimal.Decimal `gorm:"type:text"`
	AvailableCapital decimal.Decimal `gorm:"type:text"`
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (portfolioModel) TableName() string { return "portfolios" }

func (m portfolioModel) toDomain() domain.Portfolio {
	return domain.Portfolio{
		ID: m.ID, Name: m.Name, BaseCurrency: m.BaseCurrency,
		TotalCapital: m.TotalCapital, AvailableCapital: m.AvailableCapital,
		Active: m.Active, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func portfolioFromDomain(p domain.Portfolio) portfolioModel {
	return portfolioModel{
		ID: p.ID, Name: p.Name, BaseCurrency: p.BaseCurrency,
		TotalCapital: p.TotalCapital, AvailableCapital: p.AvailableCapital,
		Active: p.Active, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

type portfolioRuleModel struct {
	ID          string `gorm:"primaryKey"`
	PortfolioID string `gorm:"index"`
	Kind        string
	ValueJSON   string `gorm:"column:value_json"`
	Active      bool
}

func (portfolioRuleModel) TableName() string { return "portfolio_rules" }

func (m portfolioRuleModel) toDomain() (domain.PortfolioRule, error) {
	var value map[string]interface{}
	if m.ValueJSON != "" {
		if err := json.Unmarshal([]byte(m.ValueJSON), &value); err != nil {
			return domain.PortfolioRule{}, err
		}
	}
	return domain.PortfolioRule{
		ID: m.ID, PortfolioID: m.PortfolioID, Kind: domain.RuleKind(m.Kind), Value: value, Active: m.Active,
	}, nil
}

func portfolioRuleFromDomain(r domain.PortfolioRule) (portfolioRuleModel, error) {
	raw, err := json.Marshal(r.Value)
	if err != nil {
		return portfolioRuleModel{}, err
	}
	return portfolioRuleModel{
		ID: r.ID, PortfolioID: r.PortfolioID, Kind: string(r.Kind), ValueJSON: string(raw), Active: r.Active,
	}, nil
}

type strategyModel struct {
	ID             string `gorm:"primaryKey"`
	Name           string
	Type           string
	Exchange       string
	Symbol         string
	ParamsJSON     string          `gorm:"column:params_json"`
	SizingMethod   string          `gorm:"column:sizing_method"`
	SizingPercent  decimal.Decimal `gorm:"column:sizing_percent;type:text"`
	SizingFixedAmt decimal.Decimal `gorm:"column:sizing_fixed_amount;type:text"`
	Active         bool
	PortfolioID    string `gorm:"column:portfolio_id;index"`
}

func (strategyModel) TableName() string { return "strategies" }

func (m strategyModel) toDomain() (domain.Strategy, error) {
	var params map[string]interface{}
	if m.ParamsJSON != "" {
		if err := json.Unmarshal([]byte(m.ParamsJSON), &params); err != nil {
			return domain.Strategy{}, err
		}
	}
	return domain.Strategy{
		ID: m.ID, Name: m.Name, Type: m.Type, Exchange: m.Exchange, Symbol: m.Symbol,
		Params: params,
		Sizing: domain.PositionSizingConfig{
			Method:        m.SizingMethod,
			PercentOfPort: m.SizingPercent,
			FixedAmount:   m.SizingFixedAmt,
		},
		Active:    m.Active,
		Portfolio: m.PortfolioID,
	}, nil
}

func strategyFromDomain(s domain.Strategy) (strategyModel, error) {
	raw, err := json.Marshal(s.Params)
	if err != nil {
		return strategyModel{}, err
	}
	return strategyModel{
		ID: s.ID, Name: s.Name, Type: s.Type, Exchange: s.Exchange, Symbol: s.Symbol,
		ParamsJSON: string(raw), SizingMethod: s.Sizing.Method,
		SizingPercent: s.Sizing.PercentOfPort, SizingFixedAmt: s.Sizing.FixedAmount,
		Active: s.Active, PortfolioID: s.Portfolio,
	}, nil
}

type positionModel struct {
	ID            string `gorm:"primaryKey"`
	StrategyID    string `gorm:"index"`
	Symbol        string `gorm:"index"`
	Side          string
	Size          decimal.Decimal `gorm:"type:text"`
	AverageEntry  decimal.Decimal `gorm:"type:text"`
	UnrealizedPnL decimal.Decimal `gorm:"type:text"`
	RealizedPnL   decimal.Decimal `gorm:"type:text"`
	TotalFees     decimal.Decimal `gorm:"type:text"`
	StopLoss      *decimal.Decimal
	TakeProfit    *decimal.Decimal
	Open          bool `gorm:"index"`
	OpenedAt      time.Time
	ClosedAt      *time.Time
}

func (positionModel) TableName() string { return "positions" }

func (m positionModel) toDomain() domain.Position {
	return domain.Position{
		ID: m.ID, StrategyID: m.StrategyID, Symbol: m.Symbol, Side: m.Side,
		Size: m.Size, AverageEntry: m.AverageEntry, UnrealizedPnL: m.UnrealizedPnL,
		RealizedPnL: m.RealizedPnL, TotalFees: m.TotalFees,
		StopLoss: m.StopLoss, TakeProfit: m.TakeProfit,
		Open: m.Open, OpenedAt: m.OpenedAt, ClosedAt: m.ClosedAt,
	}
}

func positionFromDomain(p domain.Position) positionModel {
	return positionModel{
		ID: p.ID, StrategyID: p.StrategyID, Symbol: p.Symbol, Side: p.Side,
		Size: p.Size, AverageEntry: p.AverageEntry, UnrealizedPnL: p.UnrealizedPnL,
		RealizedPnL: p.RealizedPnL, TotalFees: p.TotalFees,
		StopLoss: p.StopLoss, TakeProfit: p.TakeProfit,
		Open: p.Open, OpenedAt: p.OpenedAt, ClosedAt: p.ClosedAt,
	}
}

type gridOrderModel struct {
	ID         string `gorm:"primaryKey"`
	StrategyID string `gorm:"index"`
	Level      int
	Side       string
	Price      decimal.Decimal `gorm:"type:text"`
	Amount     decimal.Decimal `gorm:"type:text"`
	Filled     bool
}

func (gridOrderModel) TableName() string { return "grid_orders" }

func (m gridOrderModel) toDomain() domain.GridOrder {
	return domain.GridOrder{
		ID: m.ID, StrategyID: m.StrategyID, Level: m.Level, Side: domain.Side(m.Side),
		Price: m.Price, Amount: m.Amount, Filled: m.Filled,
	}
}

func gridOrderFromDomain(g domain.GridOrder) gridOrderModel {
	return gridOrderModel{
		ID: g.ID, StrategyID: g.StrategyID, Level: g.Level, Side: string(g.Side),
		Price: g.Price, Amount: g.Amount, Filled: g.Filled,
	}
}
