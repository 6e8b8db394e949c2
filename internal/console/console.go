package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/backend"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/cache"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/lifecycle"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/model"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/progress"
)

type Orders interface {
	Get(orderID string) (model.Order, bool)
	List() []model.Order
	SnapshotErr() error
	LoadInitialData(ctx context.Context) (cache.SnapshotResult, error)
}

type Tracker interface {
	Track(ctx context.Context, orderID string, onUpdate progress.UpdateFunc) error
	Untrack(orderID string) bool
}

type State interface {
	Snapshot() (model.SystemState, error)
	Retry(ctx context.Context) error
}

// Handler runs operator commands against the local order view and relays
// actions to the backend. The view itself only changes through the stream.
type Handler struct {
	orders  Orders
	backend backend.API
	tracker Tracker
	state   State
	logger  *zap.Logger

	outMu sync.Mutex
	out   io.Writer

	lastMu sync.Mutex
	last   map[string]string
}

func New(orders Orders, api backend.API, tracker Tracker, state State, out io.Writer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		orders:  orders,
		backend: api,
		tracker: tracker,
		state:   state,
		out:     out,
		logger:  logger.Named("console"),
		last:    make(map[string]string),
	}
}

// Run reads commands from in until exit, EOF or ctx is done.
func (h *Handler) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	h.println("Type 'help' for available commands")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if !h.Execute(ctx, line) {
				return nil
			}
		}
	}
}

// Execute runs one command line. It returns false on exit.
func (h *Handler) Execute(ctx context.Context, line string) bool {
	args, err := splitArgs(line)
	if err != nil {
		h.println("Error:", err)
		return true
	}
	if len(args) == 0 {
		return true
	}

	cmd, args := strings.ToLower(args[0]), args[1:]
	h.logger.Debug("Command", zap.String("command", cmd), zap.Int("args", len(args)))

	switch cmd {
	case "help":
		h.HandleHelp()
	case "list":
		h.HandleList(ctx, args)
	case "show":
		h.HandleShow(args)
	case "track":
		h.HandleTrack(ctx, args)
	case "untrack":
		h.HandleUntrack(args)
	case "create":
		h.HandleCreate(ctx, args)
	case "respond":
		h.HandleRespond(ctx, args)
	case "accept":
		h.HandleAccept(ctx, args)
	case "dispatch":
		h.HandleDispatch(ctx, args)
	case "status":
		h.HandleStatus(ctx, args)
	case "state":
		h.HandleState(ctx, args)
	case "exit", "quit":
		h.println("Bye")
		return false
	default:
		h.printf("Unknown command %q. Type 'help' for available commands\n", cmd)
	}
	return true
}

func (h *Handler) HandleHelp() {
	h.println(`Available commands:
	list [status|retry] - List orders, most recently changed first; retry reloads the snapshot
	show <orderID> - Show order details and permitted actions
	track <orderID> - Follow delivery progress
	untrack <orderID> - Stop following delivery progress
	create <supplier> <pizza> <price> [markup%] - Create order (supplier)
	respond <orderID> <accept|reject> [minutes] [notes] - Respond to order (supplier)
	accept <orderID> <customer> <address> - Accept order (customer)
	dispatch <orderID> <driver> - Assign driver (dispatcher)
	status <orderID> <status> - Move order forward (kitchen, dispatcher)
	state [retry] - Show system dashboard
	exit - Exit program
Quote arguments that contain spaces.`)
}

func (h *Handler) HandleList(ctx context.Context, args []string) {
	if len(args) == 1 && strings.EqualFold(args[0], "retry") {
		res, err := h.orders.LoadInitialData(ctx)
		if err != nil {
			h.println("Error:", err)
			h.println("Run 'list retry' to try again")
			return
		}
		h.printf("Snapshot reloaded: %d inserted, %d updated, %d skipped\n", res.Inserted, res.Updated, res.Skipped)
		args = nil
	}

	if err := h.orders.SnapshotErr(); err != nil {
		h.println("Error:", err)
		h.println("Run 'list retry' to try again")
		h.println("Showing orders received from the stream:")
	}

	var filter lifecycle.Status
	if len(args) > 0 {
		s, err := lifecycle.Parse(args[0])
		if err != nil {
			h.println("Error:", err)
			return
		}
		filter = s
	}

	orders := h.orders.List()
	printed := 0
	for _, o := range orders {
		if filter != "" && o.Status != filter {
			continue
		}
		if printed == 0 {
			h.println("Orders:")
		}
		printed++
		h.printf("- %s | %s | %s | %s\n", o.ID, model.Deref(o.PizzaName), lifecycle.Label(o.Status), rolesOf(o.Status))
	}
	if printed == 0 {
		h.println("No orders found")
	}
}

func (h *Handler) HandleShow(args []string) {
	if len(args) != 1 {
		h.println("Usage: show <orderID>")
		return
	}

	o, found := h.orders.Get(args[0])
	if !found {
		h.printf("Error: order %s not found\n", args[0])
		return
	}

	h.printf("Order %s [%s]\n", o.ID, lifecycle.Label(o.Status))
	field := func(name, value string) {
		if value != "" {
			h.printf("  %-17s %s\n", name+":", value)
		}
	}
	field("Tracking", model.Deref(o.TrackingID))
	field("Supplier", model.Deref(o.SupplierName))
	field("Pizza", model.Deref(o.PizzaName))
	field("Supplier price", money(o.SupplierPrice))
	field("Customer price", money(o.CustomerPrice))
	field("Customer", model.Deref(o.CustomerName))
	field("Address", model.Deref(o.DeliveryAddress))
	field("Driver", model.Deref(o.DriverName))
	field("Notes", model.Deref(o.SupplierNotes))
	if o.EstimatedDeliveryTime != nil {
		field("Est. delivery", fmt.Sprintf("%d min", *o.EstimatedDeliveryTime))
	}
	field("Updated", formatTime(o.ObservedAt()))

	if lifecycle.IsTerminal(o.Status) {
		h.println("  No further actions")
		return
	}
	h.printf("  Actionable by:    %s\n", rolesOf(o.Status))
	for _, a := range actionsFor(o) {
		h.printf("    %s\n", a)
	}
}

func (h *Handler) HandleTrack(ctx context.Context, args []string) {
	if len(args) != 1 {
		h.println("Usage: track <orderID>")
		return
	}

	orderID := args[0]
	err := h.tracker.Track(ctx, orderID, func(v progress.View) {
		line := FormatView(v)
		h.lastMu.Lock()
		changed := h.last[orderID] != line
		h.last[orderID] = line
		h.lastMu.Unlock()
		if changed {
			h.println(line)
		}
	})
	if err != nil {
		h.println("Error:", err)
		return
	}
	h.printf("Tracking order %s\n", orderID)
}

func (h *Handler) HandleUntrack(args []string) {
	if len(args) != 1 {
		h.println("Usage: untrack <orderID>")
		return
	}
	if !h.tracker.Untrack(args[0]) {
		h.printf("Order %s is not tracked\n", args[0])
		return
	}
	h.lastMu.Lock()
	delete(h.last, args[0])
	h.lastMu.Unlock()
	h.printf("Stopped tracking order %s\n", args[0])
}

func (h *Handler) HandleCreate(ctx context.Context, args []string) {
	if len(args) < 3 || len(args) > 4 {
		h.println("Usage: create <supplier> <pizza> <price> [markup%]")
		return
	}

	price, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		h.println("Invalid price")
		return
	}
	req := backend.NewOrder{SupplierName: args[0], PizzaName: args[1], SupplierPrice: price}
	if len(args) == 4 {
		markup, err := strconv.ParseFloat(strings.TrimSuffix(args[3], "%"), 64)
		if err != nil {
			h.println("Invalid markup")
			return
		}
		req.MarkupPercentage = &markup
	}

	ev, err := h.backend.CreateOrder(ctx, req)
	if err != nil {
		h.printBackendError(err)
		return
	}
	h.printf("Order %s created [%s]\n", ev.Order.ID, lifecycle.Label(ev.Order.Status))
}

func (h *Handler) HandleRespond(ctx context.Context, args []string) {
	if len(args) < 2 || len(args) > 4 {
		h.println("Usage: respond <orderID> <accept|reject> [minutes] [notes]")
		return
	}

	var resp backend.SupplierResponse
	switch strings.ToLower(args[1]) {
	case "accept":
		resp.Accept = true
	case "reject":
	default:
		h.println("Invalid decision. Use 'accept' or 'reject'")
		return
	}
	rest := args[2:]
	if len(rest) > 0 {
		if minutes, err := strconv.Atoi(rest[0]); err == nil {
			if minutes <= 0 {
				h.println("Invalid value for minutes")
				return
			}
			resp.EstimatedTime = &minutes
			rest = rest[1:]
		}
	}
	if len(rest) > 1 {
		h.println("Usage: respond <orderID> <accept|reject> [minutes] [notes]")
		return
	}
	if len(rest) == 1 {
		resp.Notes = rest[0]
	}

	h.relay(ctx, args[0], lifecycle.Supplier, func() (model.OrderEvent, error) {
		return h.backend.SupplierRespond(ctx, args[0], resp)
	})
}

func (h *Handler) HandleAccept(ctx context.Context, args []string) {
	if len(args) != 3 {
		h.println("Usage: accept <orderID> <customer> <address>")
		return
	}
	acc := backend.CustomerAcceptance{CustomerName: args[1], DeliveryAddress: args[2]}
	h.relay(ctx, args[0], lifecycle.Customer, func() (model.OrderEvent, error) {
		return h.backend.CustomerAccept(ctx, args[0], acc)
	})
}

func (h *Handler) HandleDispatch(ctx context.Context, args []string) {
	if len(args) != 2 {
		h.println("Usage: dispatch <orderID> <driver>")
		return
	}
	h.relay(ctx, args[0], lifecycle.Dispatcher, func() (model.OrderEvent, error) {
		return h.backend.Dispatch(ctx, args[0], args[1])
	})
}

func (h *Handler) HandleStatus(ctx context.Context, args []string) {
	if len(args) != 2 {
		h.println("Usage: status <orderID> <status>")
		return
	}
	status, err := lifecycle.Parse(args[1])
	if err != nil {
		h.println("Error:", err)
		return
	}
	h.relay(ctx, args[0], "", func() (model.OrderEvent, error) {
		return h.backend.UpdateStatus(ctx, args[0], status)
	})
}

func (h *Handler) HandleState(ctx context.Context, args []string) {
	if len(args) > 1 || (len(args) == 1 && args[0] != "retry") {
		h.println("Usage: state [retry]")
		return
	}
	if len(args) == 1 {
		if err := h.state.Retry(ctx); err != nil {
			h.println("Error:", err)
			h.println("Run 'state retry' to try again")
			return
		}
	}

	st, err := h.state.Snapshot()
	if err != nil {
		h.println("Error:", err)
		h.println("Run 'state retry' to try again")
		if st.LastUpdated.IsZero() {
			return
		}
		h.println("Showing last known state:")
	}

	s := st.Statistics
	h.printf("System state (updated %s):\n", formatTime(st.LastUpdated))
	h.printf("  Total: %d | Active deliveries: %d | Completed today: %d\n", s.TotalOrders, s.ActiveDeliveries, s.CompletedToday)
	h.printf("  Pending supplier: %d | Preparing: %d | Ready: %d\n", s.PendingSupplier, s.Preparing, s.Ready)
	h.printf("  Dispatched: %d | In transit: %d | Delivered: %d\n", s.Dispatched, s.InTransit, s.Delivered)
	if len(st.ActiveDrivers) == 0 {
		h.println("  No active drivers")
		return
	}
	h.println("  Active drivers:")
	for _, d := range st.ActiveDrivers {
		h.printf("  - %s | order %s | %s\n", d.DriverName, d.OrderID, lifecycle.Label(d.Status))
	}
}

// relay sends an action to the backend. The local view is not touched: the
// resulting change arrives through the stream.
func (h *Handler) relay(ctx context.Context, orderID string, role lifecycle.Role, call func() (model.OrderEvent, error)) {
	if o, found := h.orders.Get(orderID); found && role != "" && !lifecycle.IsActionableBy(o.Status, role) {
		h.printf("Warning: order %s is %s, %s actions are not expected now\n", orderID, lifecycle.Label(o.Status), role)
	}

	ev, err := call()
	if err != nil {
		h.printBackendError(err)
		return
	}
	h.printf("Order %s is now %s\n", ev.Order.ID, lifecycle.Label(ev.Order.Status))
}

func (h *Handler) printBackendError(err error) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, backend.ErrOrderNotFound):
		h.println("Error: order not found")
	case errors.As(err, &apiErr):
		h.println("Rejected:", apiErr.Detail)
	default:
		h.println("Error:", err)
	}
}

func (h *Handler) println(a ...any) {
	h.outMu.Lock()
	defer h.outMu.Unlock()
	fmt.Fprintln(h.out, a...)
}

func (h *Handler) printf(format string, a ...any) {
	h.outMu.Lock()
	defer h.outMu.Unlock()
	fmt.Fprintf(h.out, format, a...)
}

// FormatView renders one progress line.
func FormatView(v progress.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", v.OrderID, lifecycle.Label(v.CurrentStatus))

	marks := make([]string, len(v.Steps))
	for i, s := range v.Steps {
		switch s.Status {
		case progress.Completed:
			marks[i] = "x"
		case progress.Active:
			marks[i] = ">"
		default:
			marks[i] = " "
		}
	}
	fmt.Fprintf(&b, " [%s] %d%%", strings.Join(marks, "|"), v.ProgressPercent)

	if v.DriverName != "" {
		fmt.Fprintf(&b, " | driver %s", v.DriverName)
	}
	switch {
	case v.Delivered:
		b.WriteString(" | delivered")
		if !v.DeliveredAt.IsZero() {
			b.WriteString(" at " + formatTime(v.DeliveredAt))
		}
	case v.Countdown != "":
		b.WriteString(" | " + v.Countdown)
	}
	if v.Error != "" {
		b.WriteString(" | error: " + v.Error)
	}
	return b.String()
}

func actionsFor(o model.Order) []string {
	switch o.Status {
	case lifecycle.Created, lifecycle.PendingSupplier:
		return []string{"respond " + o.ID + " accept|reject [minutes] [notes]"}
	case lifecycle.SupplierAccepted:
		return []string{"accept " + o.ID + " <customer> <address>"}
	case lifecycle.CustomerAccepted:
		return []string{"status " + o.ID + " preparing"}
	case lifecycle.Preparing:
		return []string{"status " + o.ID + " ready"}
	case lifecycle.Ready:
		return []string{"dispatch " + o.ID + " <driver>"}
	case lifecycle.Dispatched:
		return []string{"status " + o.ID + " in_transit"}
	case lifecycle.InTransit:
		return []string{"status " + o.ID + " delivered"}
	default:
		return nil
	}
}

func rolesOf(s lifecycle.Status) string {
	roles := lifecycle.ActionableBy(s)
	if len(roles) == 0 {
		return "-"
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ",")
}

func money(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("$%.2f", *v)
}

func formatTime(t model.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.DateTime)
}

// splitArgs splits a command line on whitespace, keeping double-quoted
// sections together.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inQuote bool
		hasArg  bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
			hasArg = true
		case !inQuote && (r == ' ' || r == '\t'):
			if hasArg {
				args = append(args, cur.String())
				cur.Reset()
				hasArg = false
			}
		default:
			cur.WriteRune(r)
			hasArg = true
		}
	}
	if inQuote {
		return nil, errors.New("unterminated quote")
	}
	if hasArg {
		args = append(args, cur.String())
	}
	return args, nil
}
