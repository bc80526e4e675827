package dialogue

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"chat-order-service/internal/apperr"
	"chat-order-service/internal/commit"
	"chat-order-service/internal/conversation"
	"chat-order-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const fullCustomerMessage = "اسمم علی، شماره 09121234567، آدرس تهران خیابان آزادی، کدپستی 1234567890"

type fakeCatalog struct {
	products map[string]models.Product
	results  []models.Product
	err      error
}

func (c *fakeCatalog) FindByCode(_ context.Context, code string) (*models.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	p, ok := c.products[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrProductNotFound, code)
	}
	return &p, nil
}

func (c *fakeCatalog) Search(_ context.Context, _ []string, limit int) ([]models.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	if len(c.results) > limit {
		return c.results[:limit], nil
	}
	return c.results, nil
}

// fakeCommitter takes stock from an in-memory inventory and replays keys.
type fakeCommitter struct {
	stock  map[int64]int
	orders map[string]int64
	calls  []commit.Request
	fail   []commit.ErrorKind
	nextID int64
}

func newFakeCommitter(stock map[int64]int) *fakeCommitter {
	return &fakeCommitter{stock: stock, orders: make(map[string]int64), nextID: 100}
}

func (c *fakeCommitter) Commit(_ context.Context, req commit.Request) commit.Result {
	c.calls = append(c.calls, req)
	if len(c.fail) > 0 {
		kind := c.fail[0]
		c.fail = c.fail[1:]
		return commit.Result{ErrorKind: kind, Err: errors.New(string(kind))}
	}
	if id, ok := c.orders[req.IdempotencyKey]; ok {
		return commit.Result{OK: true, OrderID: id}
	}
	if c.stock[req.ProductID] < req.Quantity {
		return commit.Result{ErrorKind: commit.KindOutOfStock, Err: apperr.ErrOutOfStock}
	}
	c.stock[req.ProductID] -= req.Quantity
	c.nextID++
	c.orders[req.IdempotencyKey] = c.nextID
	return commit.Result{OK: true, OrderID: c.nextID, Total: 150000 * int64(req.Quantity)}
}

type fakeDirectory struct {
	customers map[string]models.Customer
}

func (d *fakeDirectory) FindByPhone(_ context.Context, phone string) (*models.Customer, error) {
	c, ok := d.customers[phone]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

type failingStore struct {
	*conversation.MemoryStore
}

func (s failingStore) Merge(context.Context, string, conversation.Patch) (conversation.State, error) {
	return conversation.State{}, errors.New("store unavailable")
}

func testProducts() map[string]models.Product {
	return map[string]models.Product{
		"A0001": {ID: 1, Code: "A0001", Name: "تیشرت نخی", Price: 150000, Stock: 5, Sizes: []string{"S", "M", "L"}},
		"B0002": {ID: 2, Code: "B0002", Name: "کلاه بافتنی", Price: 90000, Stock: 3, Colors: []string{"مشکی", "قرمز"}},
		"C0003": {ID: 3, Code: "C0003", Name: "شال", Price: 120000, Stock: 0},
		"D0004": {ID: 4, Code: "D0004", Name: "جوراب", Price: 30000, Stock: 1},
	}
}

type harness struct {
	engine    *Engine
	store     *conversation.MemoryStore
	catalog   *fakeCatalog
	committer *fakeCommitter
	keys      int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     conversation.NewMemoryStore(),
		catalog:   &fakeCatalog{products: testProducts()},
		committer: newFakeCommitter(map[int64]int{1: 5, 2: 3, 4: 1}),
	}
	engine, err := NewEngine(EngineOpts{
		Store:     h.store,
		Catalog:   h.catalog,
		Committer: h.committer,
		Customers: &fakeDirectory{customers: map[string]models.Customer{
			"09350000000": {FirstName: "سارا", LastName: "محمدی", Phone: "09350000000", Address: "شیراز، خیابان زند", PostalCode: "7134567890"},
		}},
		Logger: zap.NewNop(),
		NewCommitKey: func() string {
			h.keys++
			return fmt.Sprintf("key-%d", h.keys)
		},
	})
	require.NoError(t, err)
	h.engine = engine
	return h
}

func (h *harness) send(t *testing.T, id, text string) Reply {
	t.Helper()
	reply, err := h.engine.HandleMessage(context.Background(), id, text)
	require.NoError(t, err)
	return reply
}

func (h *harness) state(t *testing.T, id string) conversation.State {
	t.Helper()
	st, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return st
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	_, err := NewEngine(EngineOpts{})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = NewEngine(EngineOpts{Store: conversation.NewMemoryStore(), Catalog: &fakeCatalog{}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestHandleMessageRequiresConversationID(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.HandleMessage(context.Background(), " ", "A0001")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestEndToEndOrder(t *testing.T) {
	h := newHarness(t)

	reply := h.send(t, "c1", "A0001")
	assert.Equal(t, conversation.StageProductSelected, reply.Debug.Stage)
	assert.Contains(t, reply.Text, "تیشرت نخی")

	reply = h.send(t, "c1", "۲ عدد سایز M")
	assert.Equal(t, conversation.StageProductSelected, reply.Debug.Stage)
	st := h.state(t, "c1")
	assert.Equal(t, 2, st.Wanted.Qty)
	assert.Equal(t, "M", st.Wanted.Size)

	reply = h.send(t, "c1", fullCustomerMessage)
	assert.Equal(t, conversation.StageAwaitingConfirmation, reply.Debug.Stage)
	assert.Contains(t, reply.Text, "300,000")
	st = h.state(t, "c1")
	assert.Equal(t, "علی", st.Customer.FirstName)
	assert.Equal(t, "09121234567", st.Customer.Phone)
	assert.Equal(t, "1234567890", st.Customer.PostalCode)
	assert.Equal(t, "key-1", st.CommitKey)

	reply = h.send(t, "c1", "تایید")
	require.NotNil(t, reply.OrderID)
	assert.Equal(t, int64(101), *reply.OrderID)
	assert.Contains(t, reply.Text, "101")
	assert.Equal(t, conversation.StageIdle, reply.Debug.Stage)

	require.Len(t, h.committer.calls, 1)
	call := h.committer.calls[0]
	assert.Equal(t, int64(1), call.ProductID)
	assert.Equal(t, 2, call.Quantity)
	assert.Equal(t, "M", call.Size)
	assert.Equal(t, "key-1", call.IdempotencyKey)
	assert.Equal(t, 3, h.committer.stock[1])

	st = h.state(t, "c1")
	assert.Equal(t, conversation.StageIdle, st.Stage)
	assert.Nil(t, st.SelectedProduct)
	assert.Equal(t, conversation.CustomerDraft{}, st.Customer)
}

func TestRepeatedConfirmationDoesNotCommitAgain(t *testing.T) {
	h := newHarness(t)
	h.send(t, "c1", "B0002")
	h.send(t, "c1", fullCustomerMessage)
	first := h.send(t, "c1", "تایید")
	require.NotNil(t, first.OrderID)

	second := h.send(t, "c1", "تایید")
	assert.Nil(t, second.OrderID)
	assert.Equal(t, msgNoActiveOrder, second.Text)
	assert.Len(t, h.committer.calls, 1)
	assert.Equal(t, 2, h.committer.stock[2])
}

func TestCancellationDominates(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "refused confirmation", text: "تایید نمیکنم"},
		{name: "yes but cancel", text: "بله، لغو کن"},
		{name: "cancel with contact data", text: "لغو " + fullCustomerMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.send(t, "c1", "B0002")
			h.send(t, "c1", fullCustomerMessage)
			require.Equal(t, conversation.StageAwaitingConfirmation, h.state(t, "c1").Stage)

			reply := h.send(t, "c1", tt.text)
			assert.Equal(t, "cancel", reply.Debug.Transition)
			assert.Equal(t, msgCancelled, reply.Text)
			assert.Empty(t, h.committer.calls)

			st := h.state(t, "c1")
			assert.Equal(t, conversation.StageIdle, st.Stage)
			assert.Nil(t, st.SelectedProduct)
			assert.Equal(t, conversation.CustomerDraft{}, st.Customer)
		})
	}
}

func TestCancelWithoutActiveOrder(t *testing.T) {
	h := newHarness(t)
	reply := h.send(t, "c1", "لغو")
	assert.Equal(t, msgNothingToCancel, reply.Text)
	assert.Equal(t, conversation.StageIdle, reply.Debug.Stage)
}

func TestPromptsListExactlyMissingFields(t *testing.T) {
	h := newHarness(t)
	h.send(t, "c1", "B0002")

	reply := h.send(t, "c1", "اسمم علی")
	assert.Equal(t, conversation.StageAwaitingCustomerInfo, reply.Debug.Stage)
	assert.Equal(t, msgAskCustomer([]conversation.Field{
		conversation.FieldPhone, conversation.FieldAddress, conversation.FieldPostalCode,
	}), reply.Text)

	reply = h.send(t, "c1", "شماره 09121234567")
	assert.Equal(t, conversation.StageAwaitingCustomerInfo, reply.Debug.Stage)
	assert.Equal(t, msgAskCustomer([]conversation.Field{
		conversation.FieldAddress, conversation.FieldPostalCode,
	}), reply.Text)

	reply = h.send(t, "c1", "آدرس تهران خیابان آزادی، کدپستی 1234567890")
	assert.Equal(t, conversation.StageAwaitingConfirmation, reply.Debug.Stage)
	assert.Contains(t, reply.Text, "خلاصه سفارش")
}

func TestConfirmWithoutCustomerAsksForAllFields(t *testing.T) {
	for _, phrase := range []string{"تایید", "همینو میخوام"} {
		t.Run(phrase, func(t *testing.T) {
			h := newHarness(t)
			h.send(t, "c1", "B0002")

			reply := h.send(t, "c1", phrase)
			assert.Equal(t, conversation.StageAwaitingCustomerInfo, reply.Debug.Stage)
			assert.Equal(t, msgAskCustomer([]conversation.Field{
				conversation.FieldName, conversation.FieldPhone, conversation.FieldAddress, conversation.FieldPostalCode,
			}), reply.Text)

			reply = h.send(t, "c1", fullCustomerMessage)
			assert.Equal(t, conversation.StageAwaitingConfirmation, reply.Debug.Stage)
			assert.Nil(t, reply.OrderID)
			assert.Empty(t, h.committer.calls)
		})
	}
}

func TestAddressWordsAreNotCancellation(t *testing.T) {
	tests := []struct {
		name    string
		message string
		address string
	}{
		{
			name:    "english house number",
			message: "address: Tehran, Azadi St, No 12, postal code 1234567890",
			address: "Tehran, Azadi St, No 12",
		},
		{
			name:    "persian alley named nine",
			message: "آدرس تهران کوچه نه پلاک ۵، کدپستی ۱۲۳۴۵۶۷۸۹۰",
			address: "تهران کوچه نه پلاک 5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.send(t, "c1", "B0002")
			reply := h.send(t, "c1", "اسمم علی، شماره 09121234567")
			require.Equal(t, conversation.StageAwaitingCustomerInfo, reply.Debug.Stage)

			reply = h.send(t, "c1", tt.message)
			assert.NotEqual(t, "cancel", reply.Debug.Transition)
			assert.Equal(t, conversation.StageAwaitingConfirmation, reply.Debug.Stage)

			st := h.state(t, "c1")
			require.NotNil(t, st.SelectedProduct)
			assert.Equal(t, "B0002", st.SelectedProduct.Code)
			assert.Equal(t, "علی", st.Customer.FirstName)
			assert.Equal(t, "09121234567", st.Customer.Phone)
			assert.Equal(t, tt.address, st.Customer.Address)
			assert.Equal(t, "1234567890", st.Customer.PostalCode)
		})
	}
}

func TestSizeRequiredBeforeCustomerInfo(t *testing.T) {
	h := newHarness(t)
	h.send(t, "c1", "A0001")

	reply := h.send(t, "c1", "تایید")
	assert.Equal(t, conversation.StageProductSelected, reply.Debug.Stage)
	assert.Equal(t, "ask_size", reply.Debug.Transition)
	assert.Equal(t, msgAskSize([]string{"S", "M", "L"}), reply.Text)
}

func TestQuantityBelowOneIsRejected(t *testing.T) {
	h := newHarness(t)
	h.send(t, "c1", "A0001")
	h.send(t, "c1", "۳ عدد")
	require.Equal(t, 3, h.state(t, "c1").Wanted.Qty)

	reply := h.send(t, "c1", "۰ عدد")
	assert.Contains(t, reply.Text, msgInvalidQty)
	assert.Equal(t, 3, h.state(t, "c1").Wanted.Qty)

	reply = h.send(t, "c1", "-2 تا")
	assert.Contains(t, reply.Text, msgInvalidQty)
	assert.Equal(t, 3, h.state(t, "c1").Wanted.Qty)
}

func TestQuantityAboveStockIsRejected(t *testing.T) {
	h := newHarness(t)
	h.send(t, "c1", "B0002")

	reply := h.send(t, "c1", "10 تا")
	assert.Contains(t, reply.Text, msgNotEnoughStock(3))
	assert.Equal(t, 1, h.state(t, "c1").Wanted.Qty)
}

func TestUnavailableSizeAndColor(t *testing.T) {
	h := newHarness(t)
	h.send(t, "c1", "A0001")
	reply := h.send(t, "c1", "سایز XL")
	assert.Contains(t, reply.Text, msgSizeUnavailable([]string{"S", "M", "L"}))
	assert.Empty(t, h.state(t, "c1").Wanted.Size)

	h.send(t, "c2", "B0002")
	reply = h.send(t, "c2", "آبی")
	assert.Contains(t, reply.Text, msgColorUnavailable([]string{"مشکی", "قرمز"}))

	reply = h.send(t, "c2", "قرمز")
	assert.Equal(t, "update_wanted", reply.Debug.Transition)
	assert.Equal(t, "قرمز", h.state(t, "c2").Wanted.Color)
}

func TestUnknownProductCode(t *testing.T) {
	h := newHarness(t)
	reply := h.send(t, "c1", "کد Z9999 رو دارید؟")
	assert.Equal(t, msgProductNotFound("Z9999"), reply.Text)
	assert.Equal(t, conversation.StageIdle, reply.Debug.Stage)
}

func TestOutOfStockProductIsNotSelected(t *testing.T) {
	h := newHarness(t)
	reply := h.send(t, "c1", "C0003")
	assert.Equal(t, "product_unavailable", reply.Debug.Transition)
	assert.Equal(t, conversation.StageIdle, reply.Debug.Stage)
	assert.Nil(t, h.state(t, "c1").SelectedProduct)
}

func TestSearchOffersCandidatesAndPicksByNumber(t *testing.T) {
	h := newHarness(t)
	products := testProducts()
	h.catalog.results = []models.Product{products["A0001"], products["B0002"]}

	reply := h.send(t, "c1", "کلاه یا تیشرت دارید؟")
	assert.Equal(t, conversation.StageSearching, reply.Debug.Stage)
	assert.Contains(t, reply.Text, "1. تیشرت نخی (A0001)")
	assert.Equal(t, []string{"A0001", "B0002"}, h.state(t, "c1").Candidates)

	reply = h.send(t, "c1", "2")
	assert.Equal(t, conversation.StageProductSelected, reply.Debug.Stage)
	st := h.state(t, "c1")
	require.NotNil(t, st.SelectedProduct)
	assert.Equal(t, "B0002", st.SelectedProduct.Code)
	assert.Equal(t, 1, st.Wanted.Qty)
	assert.Empty(t, st.Candidates)
}

func TestSearchWithSingleHitSelects(t *testing.T) {
	h := newHarness(t)
	h.catalog.results = []models.Product{testProducts()["B0002"]}

	reply := h.send(t, "c1", "کلاه")
	assert.Equal(t, conversation.StageProductSelected, reply.Debug.Stage)
	assert.Equal(t, "B0002", h.state(t, "c1").SelectedProduct.Code)
}

func TestSearchWithoutHits(t *testing.T) {
	h := newHarness(t)
	reply := h.send(t, "c1", "کاپشن")
	assert.Equal(t, msgNoResults, reply.Text)
	assert.Equal(t, conversation.StageIdle, reply.Debug.Stage)
}

func TestProductCodeBeatsSearchText(t *testing.T) {
	h := newHarness(t)
	h.catalog.results = []models.Product{testProducts()["A0001"], testProducts()["D0004"]}

	reply := h.send(t, "c1", "کلاه بافتنی B0002")
	assert.Equal(t, conversation.StageProductSelected, reply.Debug.Stage)
	assert.Equal(t, "B0002", h.state(t, "c1").SelectedProduct.Code)
}

func TestReselectResetsWantedAndKeepsCustomer(t *testing.T) {
	h := newHarness(t)
	h.send(t, "c1", fullCustomerMessage)
	h.send(t, "c1", "A0001")
	h.send(t, "c1", "۲ عدد سایز M")

	reply := h.send(t, "c1", "B0002")
	assert.Equal(t, "reselect_product", reply.Debug.Transition)
	st := h.state(t, "c1")
	assert.Equal(t, "B0002", st.SelectedProduct.Code)
	assert.Equal(t, conversation.DefaultWanted(), st.Wanted)
	assert.Equal(t, "علی", st.Customer.FirstName)

	reply = h.send(t, "c1", "تایید")
	assert.Equal(t, conversation.StageAwaitingConfirmation, reply.Debug.Stage)
}

func TestProductCodeIgnoredWhileCollectingCustomer(t *testing.T) {
	h := newHarness(t)
	h.send(t, "c1", "B0002")
	h.send(t, "c1", "تایید")
	require.Equal(t, conversation.StageAwaitingCustomerInfo, h.state(t, "c1").Stage)

	reply := h.send(t, "c1", "A0001")
	assert.Equal(t, conversation.StageAwaitingCustomerInfo, reply.Debug.Stage)
	assert.Equal(t, "B0002", h.state(t, "c1").SelectedProduct.Code)
}

func TestReturningCustomerIsPrefilled(t *testing.T) {
	h := newHarness(t)
	h.send(t, "c1", "B0002")

	reply := h.send(t, "c1", "شماره 09350000000")
	assert.Equal(t, conversation.StageAwaitingConfirmation, reply.Debug.Stage)
	st := h.state(t, "c1")
	assert.Equal(t, "سارا", st.Customer.FirstName)
	assert.Equal(t, "7134567890", st.Customer.PostalCode)
}

func TestCorrectionInConfirmationMintsNewKey(t *testing.T) {
	h := newHarness(t)
	h.send(t, "c1", "B0002")
	h.send(t, "c1", fullCustomerMessage)
	require.Equal(t, "key-1", h.state(t, "c1").CommitKey)

	reply := h.send(t, "c1", "کدپستی 1111122222")
	assert.Equal(t, "resummarize", reply.Debug.Transition)
	assert.Equal(t, conversation.StageAwaitingConfirmation, reply.Debug.Stage)
	st := h.state(t, "c1")
	assert.Equal(t, "1111122222", st.Customer.PostalCode)
	assert.Equal(t, "key-2", st.CommitKey)
	assert.Empty(t, h.committer.calls)
}

func TestCommitFailureKeepsConfirmationAndKey(t *testing.T) {
	h := newHarness(t)
	h.committer.fail = []commit.ErrorKind{commit.KindInternal}
	h.send(t, "c1", "B0002")
	h.send(t, "c1", fullCustomerMessage)

	reply := h.send(t, "c1", "تایید")
	assert.Equal(t, msgCommitFailed, reply.Text)
	assert.Nil(t, reply.OrderID)
	assert.Equal(t, conversation.StageAwaitingConfirmation, h.state(t, "c1").Stage)

	reply = h.send(t, "c1", "تایید")
	require.NotNil(t, reply.OrderID)
	require.Len(t, h.committer.calls, 2)
	assert.Equal(t, h.committer.calls[0].IdempotencyKey, h.committer.calls[1].IdempotencyKey)
}

func TestStockExhaustion(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"first", "second"} {
		h.send(t, id, "D0004")
		h.send(t, id, fullCustomerMessage)
		require.Equal(t, conversation.StageAwaitingConfirmation, h.state(t, id).Stage)
	}

	reply := h.send(t, "first", "تایید")
	require.NotNil(t, reply.OrderID)

	reply = h.send(t, "second", "تایید")
	assert.Nil(t, reply.OrderID)
	assert.Equal(t, "commit_out_of_stock", reply.Debug.Transition)
	assert.Equal(t, conversation.StageAwaitingConfirmation, h.state(t, "second").Stage)
	assert.Equal(t, 0, h.committer.stock[4])

	reply = h.send(t, "second", "لغو")
	assert.Nil(t, reply.OrderID)
	assert.Equal(t, "cancel", reply.Debug.Transition)
	assert.Equal(t, conversation.StageIdle, reply.Debug.Stage)
	st := h.state(t, "second")
	assert.Equal(t, conversation.StageIdle, st.Stage)
	assert.Nil(t, st.SelectedProduct)
	assert.Empty(t, st.CommitKey)
	secondCalls := 0
	for _, call := range h.committer.calls {
		if call.IdempotencyKey == "key-2" {
			secondCalls++
		}
	}
	assert.Equal(t, 1, secondCalls)
	assert.Len(t, h.committer.orders, 1)
}

func TestCatalogFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	h.catalog.err = errors.New("connection refused")

	reply := h.send(t, "c1", "A0001")
	assert.Equal(t, msgInternalError, reply.Text)
	assert.Equal(t, "internal_error", reply.Debug.Transition)
	assert.Equal(t, conversation.StageIdle, h.state(t, "c1").Stage)
}

func TestStoreFailureAnswersGenerically(t *testing.T) {
	mem := conversation.NewMemoryStore()
	engine, err := NewEngine(EngineOpts{
		Store:     failingStore{mem},
		Catalog:   &fakeCatalog{products: testProducts()},
		Committer: newFakeCommitter(nil),
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)

	reply, err := engine.HandleMessage(context.Background(), "c1", "A0001")
	require.NoError(t, err)
	assert.Equal(t, msgInternalError, reply.Text)

	st, err := mem.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, conversation.StageIdle, st.Stage)
}

func TestConfirmInIdleIsNoop(t *testing.T) {
	h := newHarness(t)
	reply := h.send(t, "c1", "تایید")
	assert.Equal(t, msgNoActiveOrder, reply.Text)
	assert.Empty(t, h.committer.calls)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "0", formatPrice(0))
	assert.Equal(t, "950", formatPrice(950))
	assert.Equal(t, "1,500", formatPrice(1500))
	assert.Equal(t, "1,250,000", formatPrice(1250000))
	assert.Equal(t, "-12,000", formatPrice(-12000))
}
