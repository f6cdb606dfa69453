package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/example/ec-storefront-client/internal/analytics"
	"github.com/example/ec-storefront-client/internal/apiclient"
	"github.com/example/ec-storefront-client/internal/auth"
	"github.com/example/ec-storefront-client/internal/cart"
	"github.com/example/ec-storefront-client/internal/catalog"
	"github.com/example/ec-storefront-client/internal/checkout"
	"github.com/example/ec-storefront-client/internal/config"
	"github.com/example/ec-storefront-client/internal/money"
	"github.com/example/ec-storefront-client/internal/session"
	"github.com/example/ec-storefront-client/internal/storage"
	"go.uber.org/zap"
)

var errUsage = errors.New("bad arguments, run with -h for usage")

const closeTimeout = 5 * time.Second

type app struct {
	logger   *zap.Logger
	out      io.Writer
	client   *apiclient.Client
	auth     *auth.Store
	cart     *cart.Store
	checkout *checkout.Store
	catalog  *catalog.Service
	tracker  *analytics.Tracker
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, st storage.Storage, out io.Writer) (*app, error) {
	tokens := session.NewTokenStore(st)
	client := apiclient.New(cfg.APIBaseURL, tokens,
		apiclient.WithLogger(logger),
		apiclient.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
	)

	authStore := auth.NewStore(client, tokens, auth.WithLogger(logger), auth.WithProfileStorage(st))
	client.SetLogoutHook(func() { authStore.Logout(context.Background()) })

	cartOpts := []cart.Option{cart.WithLogger(logger), cart.WithPersister(cart.NewPersister(st))}
	if cfg.CartStaleGuard {
		cartOpts = append(cartOpts, cart.WithStaleResponseGuard())
	}

	var sink analytics.Sink
	switch cfg.AnalyticsSink {
	case config.SinkKafka:
		sink = analytics.NewKafkaSink(cfg.Brokers(), cfg.KafkaTopic)
	case config.SinkHTTP:
		sink = analytics.NewHTTPSink(client)
	default:
		sink = analytics.DiscardSink{}
	}
	tracker, err := analytics.NewTracker(ctx, sink, st,
		analytics.WithLogger(logger),
		analytics.WithUserAgent(cfg.UserAgent),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		logger:   logger,
		out:      out,
		client:   client,
		auth:     authStore,
		cart:     cart.NewStore(client, cartOpts...),
		checkout: checkout.NewStore(client, checkout.WithLogger(logger)),
		catalog:  catalog.NewService(client, catalog.WithLogger(logger)),
		tracker:  tracker,
	}, nil
}

// close flushes analytics with a fresh deadline so an interrupted command
// still delivers what it tracked.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := a.tracker.Close(ctx); err != nil {
		a.logger.Warn("failed to close analytics sink", zap.Error(err))
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]

	if err := a.auth.Initialize(ctx); err != nil {
		a.logger.Debug("session not restored", zap.Error(err))
	}

	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "register":
		return a.register(ctx, args)
	case "logout":
		a.auth.Logout(ctx)
		a.tracker.SignOut()
		fmt.Fprintln(a.out, "signed out")
		return nil
	case "whoami":
		return a.whoami(ctx)
	case "products":
		return a.products(ctx, args)
	case "cart":
		return a.showCart(ctx)
	case "add":
		return a.add(ctx, args)
	case "update":
		return a.update(ctx, args)
	case "remove":
		return a.remove(ctx, args)
	case "clear":
		if err := a.cart.Clear(ctx); err != nil {
			return errors.New(a.cart.Error())
		}
		fmt.Fprintln(a.out, "cart cleared")
		return nil
	case "checkout":
		return a.submitOrder(ctx, args)
	}
	return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	if err := a.auth.Login(ctx, auth.LoginRequest{Email: args[0], Password: args[1]}); err != nil {
		return errors.New(a.auth.State().Error)
	}
	a.tracker.SignIn()
	fmt.Fprintf(a.out, "signed in as %s\n", a.auth.User().Email)
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	req := auth.RegisterRequest{Email: args[0], Name: args[1], Password: args[2]}
	if err := a.auth.Register(ctx, req); err != nil {
		if msg := a.auth.State().Error; msg != "" {
			return errors.New(msg)
		}
		return err
	}
	a.tracker.SignUp()
	fmt.Fprintf(a.out, "registered %s\n", a.auth.User().Email)
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	u := a.auth.User()
	if u == nil {
		fmt.Fprintln(a.out, "not signed in")
		return nil
	}
	fmt.Fprintf(a.out, "%s <%s> role=%s\n", u.Name, u.Email, u.Role)
	if claims, err := a.auth.Claims(ctx); err == nil && claims.ExpiresAt != nil {
		fmt.Fprintf(a.out, "access token expires %s\n", claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	return nil
}

func (a *app) products(ctx context.Context, args []string) error {
	var filters catalog.Filters
	if len(args) > 0 {
		filters.Search = args[0]
	}
	list, err := a.catalog.ListProducts(ctx, filters, catalog.Page{})
	if err != nil {
		return err
	}
	if filters.Search != "" {
		a.tracker.Search(filters.Search, list.Total)
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRICE\tSIZES")
	for _, p := range list.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", p.ID, p.Name, money.MustFormat(p.Price), p.AvailableSizes)
		for _, v := range p.Variants {
			fmt.Fprintf(w, "  %s\tsize %s\t\tstock %d\n", v.ID, v.Size, v.Stock)
		}
	}
	fmt.Fprintf(w, "\n%d of %d products\n", len(list.Items), list.Total)
	return w.Flush()
}

func (a *app) loadCart(ctx context.Context) error {
	if err := a.cart.Restore(ctx); err != nil {
		a.logger.Debug("no saved cart", zap.Error(err))
	}
	if err := a.cart.Fetch(ctx); err != nil {
		return errors.New(a.cart.Error())
	}
	return nil
}

func (a *app) showCart(ctx context.Context) error {
	if err := a.loadCart(ctx); err != nil {
		return err
	}
	c := a.cart.Snapshot()
	if c == nil || len(c.Items) == 0 {
		fmt.Fprintln(a.out, "cart is empty")
		return nil
	}
	a.tracker.ViewCart(c.ItemCount, c.Total)
	printCart(a.out, c)
	return nil
}

func printCart(out io.Writer, c *cart.Cart) {
	if c == nil {
		fmt.Fprintln(out, "cart is empty")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tPRODUCT\tQTY\tUNIT\tSUBTOTAL")
	for _, it := range c.Items {
		name := it.ProductID
		if it.Product != nil {
			name = it.Product.Name
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", it.VariantID, name, it.Quantity,
			money.MustFormat(it.UnitPrice), money.MustFormat(it.Subtotal))
	}
	fmt.Fprintf(w, "\t\t%d items\t\t%s\n", c.ItemCount, money.MustFormat(c.Total))
	w.Flush()
}

func (a *app) add(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errUsage
	}
	qty := 1
	if len(args) == 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return errUsage
		}
		qty = n
	}
	if err := a.loadCart(ctx); err != nil {
		return err
	}
	if err := a.cart.AddItem(ctx, args[0], args[1], qty); err != nil {
		return errors.New(a.cart.Error())
	}
	c := a.cart.Snapshot()
	if i, ok := c.Find(args[1]); ok {
		it := c.Items[i]
		a.tracker.AddToCart(it.ProductID, it.VariantID, qty, it.UnitPrice)
	}
	printCart(a.out, c)
	return nil
}

func (a *app) update(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	qty, err := strconv.Atoi(args[1])
	if err != nil {
		return errUsage
	}
	if err := a.loadCart(ctx); err != nil {
		return err
	}
	if err := a.cart.UpdateQuantity(ctx, args[0], qty); err != nil {
		return errors.New(a.cart.Error())
	}
	printCart(a.out, a.cart.Snapshot())
	return nil
}

func (a *app) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := a.loadCart(ctx); err != nil {
		return err
	}
	var removed *cart.CartItem
	if c := a.cart.Snapshot(); c != nil {
		if i, ok := c.Find(args[0]); ok {
			removed = &c.Items[i]
		}
	}
	if err := a.cart.RemoveItem(ctx, args[0]); err != nil {
		return errors.New(a.cart.Error())
	}
	if removed != nil {
		a.tracker.RemoveFromCart(removed.ProductID, removed.VariantID, removed.Quantity)
	}
	printCart(a.out, a.cart.Snapshot())
	return nil
}

func (a *app) submitOrder(ctx context.Context, args []string) error {
	if len(args) < 7 || len(args) > 8 {
		return errUsage
	}
	if err := a.loadCart(ctx); err != nil {
		return err
	}
	if c := a.cart.Snapshot(); c != nil {
		a.tracker.BeginCheckout(c.ItemCount, c.Total)
	}

	addr := checkout.ShippingAddress{
		Name: args[0], Line1: args[1], City: args[2], State: args[3],
		PostalCode: args[4], Country: args[5], Phone: args[6],
	}
	if err := a.checkout.SetShippingAddress(addr); err != nil {
		a.tracker.CheckoutDropoff(string(checkout.StepShipping), err.Error())
		return err
	}
	a.tracker.CheckoutStep(string(checkout.StepReview), 2)

	var notes string
	if len(args) == 8 {
		notes = args[7]
	}
	order, err := a.checkout.SubmitOrder(ctx, notes)
	if err != nil {
		a.tracker.CheckoutDropoff(string(checkout.StepReview), a.checkout.State().Error)
		return err
	}

	itemCount := 0
	for _, it := range order.Items {
		itemCount += it.Quantity
	}
	a.tracker.Purchase(order.ID, order.OrderNumber, order.Total, itemCount)

	// The backend empties the cart once the order exists.
	if err := a.cart.Fetch(ctx); err != nil {
		a.logger.Warn("failed to refresh cart after order", zap.Error(err))
	}

	fmt.Fprintf(a.out, "order %s placed (%s)\n", order.OrderNumber, order.Status)
	fmt.Fprintf(a.out, "subtotal %s  shipping %s  tax %s  total %s\n",
		money.MustFormat(order.Subtotal), money.MustFormat(order.ShippingCost),
		money.MustFormat(order.Tax), money.MustFormat(order.Total))
	return nil
}
