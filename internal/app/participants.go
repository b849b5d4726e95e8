package app

import (
	"ordersaga/internal/config"
	"ordersaga/internal/inventory"
	"ordersaga/internal/order"
	"ordersaga/internal/payment"
)

func (app *Application) wireOrder() error {
	c := app.container

	var repo order.Repository = order.NewMemoryRepository()
	if c.Pool() != nil {
		repo = order.NewPostgresRepository(c.Pool())
	}

	publisher, err := c.Publisher(config.OrderCreatedTopic)
	if err != nil {
		return err
	}

	stock := order.NewHTTPStockChecker(c.Config().InventoryServiceURL, c.Config().StockCheckTimeout, c.Logger())
	service, err := order.NewService(repo, stock, publisher, c.Logger(), c.Tracer(), c.Meter())
	if err != nil {
		return err
	}

	handler := order.NewMessageHandler(service, c.Logger())
	if err := app.consume(config.PaymentCompletedTopic, config.OrderGroupID, handler.HandlePaymentCompleted); err != nil {
		return err
	}
	order.NewAPI(service, c.Logger()).Routes(app.router)
	return nil
}

func (app *Application) wireInventory() error {
	c := app.container

	var ledger inventory.Ledger = inventory.NewMemoryLedger()
	if c.Pool() != nil {
		ledger = inventory.NewPostgresLedger(c.Pool())
	}

	publisher, err := c.Publisher(config.InventoryReservedTopic)
	if err != nil {
		return err
	}

	service, err := inventory.NewService(ledger, publisher, c.Logger(), c.Tracer(), c.Meter())
	if err != nil {
		return err
	}

	handler := inventory.NewMessageHandler(service, c.Logger())
	if err := app.consume(config.OrderCreatedTopic, config.InventoryGroupID, handler.HandleOrderCreated); err != nil {
		return err
	}
	if err := app.consume(config.PaymentCompletedTopic, config.InventoryCompensationGroupID, handler.HandlePaymentCompleted); err != nil {
		return err
	}
	inventory.NewAPI(ledger, c.Logger()).Routes(app.router)
	return nil
}

func (app *Application) wirePayment() error {
	c := app.container

	var repo payment.Repository = payment.NewMemoryRepository()
	if c.Pool() != nil {
		repo = payment.NewPostgresRepository(c.Pool())
	}

	publisher, err := c.Publisher(config.PaymentCompletedTopic)
	if err != nil {
		return err
	}

	gateway := payment.NewSimulatedGateway(c.Config().PaymentDeclineRate, c.Config().PaymentLatency)
	service, err := payment.NewService(repo, gateway, publisher, c.Logger(), c.Tracer(), c.Meter())
	if err != nil {
		return err
	}

	handler := payment.NewMessageHandler(service, c.Logger())
	if err := app.consume(config.InventoryReservedTopic, config.PaymentGroupID, handler.HandleInventoryReserved); err != nil {
		return err
	}
	payment.NewAPI(service, c.Logger()).Routes(app.router)
	return nil
}
