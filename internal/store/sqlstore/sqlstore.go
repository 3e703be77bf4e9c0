// Package sqlstore implements the record store on top of sqlx. The sqlite and
// postgres backends share it and differ only in their Dialect and schema.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"specsbiz/backend/internal/domain"
	"specsbiz/backend/internal/store"
	"specsbiz/backend/internal/xid"
)

type Dialect struct {
	// LockRows appends FOR UPDATE to reads made inside write transactions.
	LockRows          bool
	IsUniqueViolation func(error) bool
}

type Store struct {
	db      *sqlx.DB
	dialect Dialect
}

func New(db *sqlx.DB, dialect Dialect) *Store {
	if dialect.IsUniqueViolation == nil {
		dialect.IsUniqueViolation = func(error) bool { return false }
	}
	return &Store{db: db, dialect: dialect}
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ApplySchema runs every statement of a schema script in order.
func ApplySchema(ctx context.Context, db *sqlx.DB, schema string) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(stmt string) string {
	if idx := strings.IndexByte(stmt, '\n'); idx > 0 {
		return stmt[:idx]
	}
	return stmt
}

func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}

func (s *Store) forUpdate(query string) string {
	if s.dialect.LockRows {
		query += " FOR UPDATE"
	}
	return s.q(query)
}

func (s *Store) begin(ctx context.Context) (*sqlx.Tx, error) {
	return s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

func (s *Store) mapInsertErr(err error) error {
	if s.dialect.IsUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

const productColumns = `id, owner_id, name, category, unit, description, purchase_price, selling_price, stock, show_in_shop, created_at, updated_at`

func (s *Store) ListProducts(ctx context.Context, ownerID string) ([]domain.Product, error) {
	var rows []productRow
	err := s.db.SelectContext(ctx, &rows, s.q(`SELECT `+productColumns+` FROM products WHERE owner_id = ? ORDER BY name, id`), ownerID)
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, row.toDomain())
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, ownerID string, id string) (*domain.Product, error) {
	var row productRow
	err := s.db.GetContext(ctx, &row, s.q(`SELECT `+productColumns+` FROM products WHERE owner_id = ? AND id = ?`), ownerID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product := row.toDomain()
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, ownerID string, product domain.Product) (*domain.Product, error) {
	if err := store.Check(product); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO products (`+productColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`), product.ID, ownerID, product.Name, product.Category, product.Unit, product.Description,
		product.PurchasePrice, product.SellingPrice, product.Stock, product.ShowInShop, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return nil, s.mapInsertErr(err)
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, ownerID string, product domain.Product) (*domain.Product, error) {
	if err := store.Check(product); err != nil {
		return nil, err
	}
	product.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE products
		SET name = ?, category = ?, unit = ?, description = ?, purchase_price = ?, selling_price = ?,
			stock = ?, show_in_shop = ?, updated_at = ?
		WHERE owner_id = ? AND id = ?
	`), product.Name, product.Category, product.Unit, product.Description, product.PurchasePrice, product.SellingPrice,
		product.Stock, product.ShowInShop, product.UpdatedAt, ownerID, product.ID)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, ownerID, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, ownerID string, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM products WHERE owner_id = ? AND id = ?`), ownerID, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

const saleColumns = `id, sale_date, total, profit, customer_id, customer_name, is_baki_payment, baki_product_name`

func (s *Store) ListSales(ctx context.Context, ownerID string) ([]domain.Sale, error) {
	var rows []saleRow
	if err := s.db.SelectContext(ctx, &rows, s.q(`SELECT `+saleColumns+` FROM sales WHERE owner_id = ? ORDER BY sale_date DESC, id`), ownerID); err != nil {
		return nil, err
	}

	var items []saleItemRow
	if err := s.db.SelectContext(ctx, &items, s.q(`
		SELECT sale_id, position, product_id, name, unit, quantity, unit_price, unit_cost
		FROM sale_items WHERE owner_id = ? ORDER BY sale_id, position
	`), ownerID); err != nil {
		return nil, err
	}
	var settlements []settlementRow
	if err := s.db.SelectContext(ctx, &settlements, s.q(`
		SELECT sale_id, record_id, amount FROM sale_settlements WHERE owner_id = ? ORDER BY sale_id, record_id
	`), ownerID); err != nil {
		return nil, err
	}

	itemsBySale := make(map[string][]domain.SaleItem, len(rows))
	for _, item := range items {
		itemsBySale[item.SaleID] = append(itemsBySale[item.SaleID], toSaleItem(item))
	}
	settlementsBySale := make(map[string][]domain.DebtSettlement)
	for _, row := range settlements {
		settlementsBySale[row.SaleID] = append(settlementsBySale[row.SaleID], domain.DebtSettlement{RecordID: row.RecordID, Amount: row.Amount})
	}

	sales := make([]domain.Sale, 0, len(rows))
	for _, row := range rows {
		sale := row.toDomain()
		sale.Items = itemsBySale[sale.ID]
		sale.Settlements = settlementsBySale[sale.ID]
		if sale.Items == nil {
			sale.Items = []domain.SaleItem{}
		}
		sales = append(sales, sale)
	}
	return sales, nil
}

func (s *Store) GetSale(ctx context.Context, ownerID string, id string) (*domain.Sale, error) {
	return s.loadSale(ctx, s.db, ownerID, id, false)
}

func (s *Store) loadSale(ctx context.Context, q sqlx.QueryerContext, ownerID string, id string, lock bool) (*domain.Sale, error) {
	query := s.q(`SELECT ` + saleColumns + ` FROM sales WHERE owner_id = ? AND id = ?`)
	if lock {
		query = s.forUpdate(`SELECT ` + saleColumns + ` FROM sales WHERE owner_id = ? AND id = ?`)
	}
	var row saleRow
	if err := sqlx.GetContext(ctx, q, &row, query, ownerID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale := row.toDomain()

	var items []saleItemRow
	if err := sqlx.SelectContext(ctx, q, &items, s.q(`
		SELECT sale_id, position, product_id, name, unit, quantity, unit_price, unit_cost
		FROM sale_items WHERE owner_id = ? AND sale_id = ? ORDER BY position
	`), ownerID, id); err != nil {
		return nil, err
	}
	sale.Items = make([]domain.SaleItem, 0, len(items))
	for _, item := range items {
		sale.Items = append(sale.Items, toSaleItem(item))
	}

	var settlements []settlementRow
	if err := sqlx.SelectContext(ctx, q, &settlements, s.q(`
		SELECT sale_id, record_id, amount FROM sale_settlements WHERE owner_id = ? AND sale_id = ? ORDER BY record_id
	`), ownerID, id); err != nil {
		return nil, err
	}
	for _, row := range settlements {
		sale.Settlements = append(sale.Settlements, domain.DebtSettlement{RecordID: row.RecordID, Amount: row.Amount})
	}
	return &sale, nil
}

func toSaleItem(row saleItemRow) domain.SaleItem {
	return domain.SaleItem{
		ProductID: row.ProductID,
		Name:      row.Name,
		Unit:      row.Unit,
		Quantity:  row.Quantity,
		UnitPrice: row.UnitPrice,
		UnitCost:  row.UnitCost,
	}
}

func (s *Store) CreateSale(ctx context.Context, ownerID string, sale domain.Sale) (*domain.Sale, error) {
	if err := store.Check(sale); err != nil {
		return nil, err
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	sale.SaleDate = sale.SaleDate.UTC()

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Read and lock everything the sale touches before writing anything.
	stock := make(map[string]decimal.Decimal, len(sale.Items))
	for _, item := range sale.Items {
		if _, seen := stock[item.ProductID]; seen {
			continue
		}
		var current decimal.Decimal
		err := tx.GetContext(ctx, &current, s.forUpdate(`SELECT stock FROM products WHERE owner_id = ? AND id = ?`), ownerID, item.ProductID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: product %s does not exist", store.ErrInvalidRecord, item.ProductID)
			}
			return nil, err
		}
		stock[item.ProductID] = current
	}

	records := make(map[string]debtRow, len(sale.Settlements))
	for _, settlement := range sale.Settlements {
		record, ok := records[settlement.RecordID]
		if !ok {
			err := tx.GetContext(ctx, &record, s.forUpdate(`
				SELECT id, customer_id, product_name, unit, quantity, amount, paid_amount, status, taken_date, note
				FROM debt_records WHERE owner_id = ? AND id = ?`), ownerID, settlement.RecordID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, fmt.Errorf("%w: debt record %s does not exist", store.ErrInvalidRecord, settlement.RecordID)
				}
				return nil, err
			}
			if record.CustomerID != sale.CustomerID {
				return nil, fmt.Errorf("%w: debt record %s does not belong to customer", store.ErrInvalidRecord, settlement.RecordID)
			}
		}
		domainRecord := record.toDomain()
		if settlement.Amount.GreaterThan(domainRecord.Unpaid()) {
			return nil, fmt.Errorf("%w: settlement exceeds unpaid amount of %s", store.ErrInvalidRecord, record.ID)
		}
		record.PaidAmount = record.PaidAmount.Add(settlement.Amount)
		records[record.ID] = record
	}

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO sales (id, owner_id, sale_date, total, profit, customer_id, customer_name, is_baki_payment, baki_product_name)
		VALUES (?,?,?,?,?,?,?,?,?)
	`), sale.ID, ownerID, sale.SaleDate, sale.Total, sale.Profit, sale.CustomerID, sale.CustomerName, sale.IsBakiPayment, sale.BakiProductName)
	if err != nil {
		return nil, s.mapInsertErr(err)
	}

	now := time.Now().UTC()
	for position, item := range sale.Items {
		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO sale_items (owner_id, sale_id, position, product_id, name, unit, quantity, unit_price, unit_cost)
			VALUES (?,?,?,?,?,?,?,?,?)
		`), ownerID, sale.ID, position, item.ProductID, item.Name, item.Unit, item.Quantity, item.UnitPrice, item.UnitCost)
		if err != nil {
			return nil, err
		}
		stock[item.ProductID] = floorZero(stock[item.ProductID].Sub(item.Quantity))
	}
	for productID, remaining := range stock {
		if err := s.setStock(ctx, tx, ownerID, productID, remaining, now); err != nil {
			return nil, err
		}
	}

	for _, settlement := range sale.Settlements {
		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO sale_settlements (owner_id, sale_id, record_id, amount) VALUES (?,?,?,?)
		`), ownerID, sale.ID, settlement.RecordID, settlement.Amount)
		if err != nil {
			return nil, err
		}
	}
	for _, record := range records {
		if err := s.setPaid(ctx, tx, ownerID, record.toDomain()); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	if sale.Items == nil {
		sale.Items = []domain.SaleItem{}
	}
	return &sale, nil
}

func (s *Store) DeleteSale(ctx context.Context, ownerID string, id string, opts store.DeleteOptions) (*domain.Sale, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := s.loadSale(ctx, tx, ownerID, id, true)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if opts.ReverseStock {
		for _, item := range sale.Items {
			var current decimal.Decimal
			err := tx.GetContext(ctx, &current, s.forUpdate(`SELECT stock FROM products WHERE owner_id = ? AND id = ?`), ownerID, item.ProductID)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if err := s.setStock(ctx, tx, ownerID, item.ProductID, current.Add(item.Quantity), now); err != nil {
				return nil, err
			}
		}
	}
	if opts.ReverseSettlements {
		for _, settlement := range sale.Settlements {
			var row debtRow
			err := tx.GetContext(ctx, &row, s.forUpdate(`
				SELECT id, customer_id, product_name, unit, quantity, amount, paid_amount, status, taken_date, note
				FROM debt_records WHERE owner_id = ? AND id = ?`), ownerID, settlement.RecordID)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return nil, err
			}
			record := row.toDomain()
			record.PaidAmount = floorZero(record.PaidAmount.Sub(settlement.Amount))
			if err := s.setPaid(ctx, tx, ownerID, record); err != nil {
				return nil, err
			}
		}
	}

	for _, table := range []string{"sale_items", "sale_settlements"} {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM `+table+` WHERE owner_id = ? AND sale_id = ?`), ownerID, id); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM sales WHERE owner_id = ? AND id = ?`), ownerID, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Store) setStock(ctx context.Context, tx *sqlx.Tx, ownerID string, productID string, stock decimal.Decimal, at time.Time) error {
	_, err := tx.ExecContext(ctx, s.q(`UPDATE products SET stock = ?, updated_at = ? WHERE owner_id = ? AND id = ?`), stock, at, ownerID, productID)
	return err
}

func (s *Store) setPaid(ctx context.Context, tx *sqlx.Tx, ownerID string, record domain.DebtRecord) error {
	record.SettleStatus()
	_, err := tx.ExecContext(ctx, s.q(`UPDATE debt_records SET paid_amount = ?, status = ? WHERE owner_id = ? AND id = ?`),
		record.PaidAmount, record.Status, ownerID, record.ID)
	return err
}

const customerColumns = `id, first_name, last_name, email, phone, address, segment, created_at`

func (s *Store) ListCustomers(ctx context.Context, ownerID string) ([]domain.Customer, error) {
	var rows []customerRow
	if err := s.db.SelectContext(ctx, &rows, s.q(`SELECT `+customerColumns+` FROM customers WHERE owner_id = ? ORDER BY first_name, last_name, id`), ownerID); err != nil {
		return nil, err
	}
	dues, err := s.dues(ctx, s.db, ownerID, "")
	if err != nil {
		return nil, err
	}
	customers := make([]domain.Customer, 0, len(rows))
	for _, row := range rows {
		customer := row.toDomain()
		if due, ok := dues[customer.ID]; ok {
			customer.TotalDue = due
		}
		customers = append(customers, customer)
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, ownerID string, id string) (*domain.Customer, error) {
	var row customerRow
	if err := s.db.GetContext(ctx, &row, s.q(`SELECT `+customerColumns+` FROM customers WHERE owner_id = ? AND id = ?`), ownerID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	dues, err := s.dues(ctx, s.db, ownerID, id)
	if err != nil {
		return nil, err
	}
	customer := row.toDomain()
	if due, ok := dues[id]; ok {
		customer.TotalDue = due
	}
	return &customer, nil
}

// dues sums the unpaid part of debt records per customer. The sum runs in Go so
// sqlite's TEXT decimals never go through floating point.
func (s *Store) dues(ctx context.Context, q sqlx.QueryerContext, ownerID string, customerID string) (map[string]decimal.Decimal, error) {
	query := `SELECT id, customer_id, product_name, unit, quantity, amount, paid_amount, status, taken_date, note
		FROM debt_records WHERE owner_id = ?`
	args := []any{ownerID}
	if customerID != "" {
		query += ` AND customer_id = ?`
		args = append(args, customerID)
	}
	var rows []debtRow
	if err := sqlx.SelectContext(ctx, q, &rows, s.q(query), args...); err != nil {
		return nil, err
	}
	dues := make(map[string]decimal.Decimal)
	for _, row := range rows {
		dues[row.CustomerID] = dues[row.CustomerID].Add(row.toDomain().Unpaid())
	}
	return dues, nil
}

func (s *Store) CreateCustomer(ctx context.Context, ownerID string, customer domain.Customer) (*domain.Customer, error) {
	if err := store.Check(customer); err != nil {
		return nil, err
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	customer.TotalDue = decimal.Zero

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO customers (id, owner_id, first_name, last_name, email, phone, address, segment, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)
	`), customer.ID, ownerID, customer.FirstName, customer.LastName, customer.Email, customer.Phone, customer.Address, customer.Segment, customer.CreatedAt)
	if err != nil {
		return nil, s.mapInsertErr(err)
	}
	return &customer, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, ownerID string, customer domain.Customer) (*domain.Customer, error) {
	if err := store.Check(customer); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE customers
		SET first_name = ?, last_name = ?, email = ?, phone = ?, address = ?, segment = ?
		WHERE owner_id = ? AND id = ?
	`), customer.FirstName, customer.LastName, customer.Email, customer.Phone, customer.Address, customer.Segment, ownerID, customer.ID)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return s.GetCustomer(ctx, ownerID, customer.ID)
}

func (s *Store) DeleteCustomer(ctx context.Context, ownerID string, id string) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var found string
	if err := tx.GetContext(ctx, &found, s.forUpdate(`SELECT id FROM customers WHERE owner_id = ? AND id = ?`), ownerID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	dues, err := s.dues(ctx, tx, ownerID, id)
	if err != nil {
		return err
	}
	if dues[id].IsPositive() {
		return fmt.Errorf("%w: customer has outstanding baki", store.ErrConflict)
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM debt_records WHERE owner_id = ? AND customer_id = ?`), ownerID, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM customers WHERE owner_id = ? AND id = ?`), ownerID, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListDebtRecords(ctx context.Context, ownerID string, customerID string) ([]domain.DebtRecord, error) {
	query := `
		SELECT d.id, d.customer_id, d.product_name, d.unit, d.quantity, d.amount, d.paid_amount, d.status, d.taken_date, d.note,
			c.first_name, c.last_name
		FROM debt_records d
		JOIN customers c ON c.owner_id = d.owner_id AND c.id = d.customer_id
		WHERE d.owner_id = ?`
	args := []any{ownerID}
	if customerID != "" {
		query += ` AND d.customer_id = ?`
		args = append(args, customerID)
	}
	query += ` ORDER BY d.taken_date DESC, d.id`

	var rows []struct {
		debtRow
		FirstName string `db:"first_name"`
		LastName  string `db:"last_name"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, err
	}
	records := make([]domain.DebtRecord, 0, len(rows))
	for _, row := range rows {
		record := row.debtRow.toDomain()
		record.CustomerName = domain.Customer{FirstName: row.FirstName, LastName: row.LastName}.FullName()
		records = append(records, record)
	}
	return records, nil
}

func (s *Store) CreateDebtRecord(ctx context.Context, ownerID string, record domain.DebtRecord) (*domain.DebtRecord, error) {
	record.SettleStatus()
	if err := store.Check(record); err != nil {
		return nil, err
	}
	if record.PaidAmount.GreaterThan(record.Amount) {
		return nil, fmt.Errorf("%w: paid amount exceeds amount", store.ErrInvalidRecord)
	}
	customer, err := s.GetCustomer(ctx, ownerID, record.CustomerID)
	if err != nil {
		return nil, err
	}
	if record.ID == "" {
		record.ID = xid.New("baki")
	}
	record.TakenDate = record.TakenDate.UTC()

	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO debt_records (id, owner_id, customer_id, product_name, unit, quantity, amount, paid_amount, status, taken_date, note)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
	`), record.ID, ownerID, record.CustomerID, record.ProductName, record.Unit, record.Quantity, record.Amount,
		record.PaidAmount, record.Status, record.TakenDate, record.Note)
	if err != nil {
		return nil, s.mapInsertErr(err)
	}
	record.CustomerName = customer.FullName()
	return &record, nil
}

func (s *Store) DeleteDebtRecord(ctx context.Context, ownerID string, customerID string, id string) (*domain.DebtRecord, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var row debtRow
	err = tx.GetContext(ctx, &row, s.forUpdate(`
		SELECT id, customer_id, product_name, unit, quantity, amount, paid_amount, status, taken_date, note
		FROM debt_records WHERE owner_id = ? AND id = ?`), ownerID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if customerID != "" && row.CustomerID != customerID {
		return nil, store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM debt_records WHERE owner_id = ? AND id = ?`), ownerID, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	record := row.toDomain()
	return &record, nil
}

const procurementColumns = `id, product_id, product_name, unit, quantity, buy_price, total_cost, procured_at, kind`

func (s *Store) ListProcurements(ctx context.Context, ownerID string) ([]domain.Procurement, error) {
	var rows []procurementRow
	if err := s.db.SelectContext(ctx, &rows, s.q(`SELECT `+procurementColumns+` FROM procurements WHERE owner_id = ? ORDER BY procured_at DESC, id`), ownerID); err != nil {
		return nil, err
	}
	entries := make([]domain.Procurement, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toDomain())
	}
	return entries, nil
}

func (s *Store) CreateProcurement(ctx context.Context, ownerID string, procurement domain.Procurement) (*domain.Procurement, error) {
	if err := store.Check(procurement); err != nil {
		return nil, err
	}
	if procurement.ID == "" {
		procurement.ID = xid.New("proc")
	}
	procurement.Date = procurement.Date.UTC()

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if procurement.ProductID != "" {
		var current decimal.Decimal
		err := tx.GetContext(ctx, &current, s.forUpdate(`SELECT stock FROM products WHERE owner_id = ? AND id = ?`), ownerID, procurement.ProductID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if err := s.setStock(ctx, tx, ownerID, procurement.ProductID, current.Add(procurement.Quantity), time.Now().UTC()); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO procurements (id, owner_id, `+strings.TrimPrefix(procurementColumns, "id, ")+`)
		VALUES (?,?,?,?,?,?,?,?,?,?)
	`), procurement.ID, ownerID, procurement.ProductID, procurement.ProductName, procurement.Unit, procurement.Quantity,
		procurement.BuyPrice, procurement.TotalCost, procurement.Date, procurement.Type)
	if err != nil {
		return nil, s.mapInsertErr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &procurement, nil
}

func (s *Store) DeleteProcurement(ctx context.Context, ownerID string, id string, opts store.DeleteOptions) (*domain.Procurement, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var row procurementRow
	if err := tx.GetContext(ctx, &row, s.forUpdate(`SELECT `+procurementColumns+` FROM procurements WHERE owner_id = ? AND id = ?`), ownerID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	procurement := row.toDomain()

	if opts.ReverseStock && procurement.ProductID != "" {
		var current decimal.Decimal
		err := tx.GetContext(ctx, &current, s.forUpdate(`SELECT stock FROM products WHERE owner_id = ? AND id = ?`), ownerID, procurement.ProductID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return nil, err
		default:
			if err := s.setStock(ctx, tx, ownerID, procurement.ProductID, floorZero(current.Sub(procurement.Quantity)), time.Now().UTC()); err != nil {
				return nil, err
			}
		}
	}

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM procurements WHERE owner_id = ? AND id = ?`), ownerID, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &procurement, nil
}

func (s *Store) GetSettings(ctx context.Context, ownerID string) (*domain.ShopSettings, error) {
	var row settingsRow
	err := s.db.GetContext(ctx, &row, s.q(`
		SELECT owner_id, shop_name, currency, language, shop_active, access_code_hash, updated_at
		FROM shop_settings WHERE owner_id = ?
	`), ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &domain.ShopSettings{
		OwnerID:        row.OwnerID,
		ShopName:       row.ShopName,
		Currency:       row.Currency,
		Language:       row.Language,
		ShopActive:     row.ShopActive,
		AccessCodeHash: row.AccessCodeHash,
		UpdatedAt:      row.UpdatedAt.UTC(),
	}, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.ShopSettings) error {
	if err := store.Check(settings); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO shop_settings (owner_id, shop_name, currency, language, shop_active, access_code_hash, updated_at)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT (owner_id)
		DO UPDATE SET shop_name = EXCLUDED.shop_name, currency = EXCLUDED.currency, language = EXCLUDED.language,
			shop_active = EXCLUDED.shop_active, access_code_hash = EXCLUDED.access_code_hash, updated_at = EXCLUDED.updated_at
	`), settings.OwnerID, settings.ShopName, settings.Currency, settings.Language, settings.ShopActive, settings.AccessCodeHash, time.Now().UTC())
	return err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO audit_logs (id, owner_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)
	`), entry.ID, entry.OwnerID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt.UTC())
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, ownerID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows, s.q(`
		SELECT id, owner_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE owner_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ?
	`), ownerID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	logs := make([]domain.AuditLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, domain.AuditLog{
			ID:            row.ID,
			OwnerID:       row.OwnerID,
			ActorUsername: row.ActorUsername,
			ActorRole:     row.ActorRole,
			Action:        row.Action,
			EntityType:    row.EntityType,
			EntityID:      row.EntityID,
			Detail:        row.Detail,
			CreatedAt:     row.CreatedAt.UTC(),
		})
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" {
		return store.ErrInvalidRecord
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO users (username, password, role, owner_id, active, created_at)
		VALUES (?,?,?,?,?,?)
	`), user.Username, user.Password, user.Role, user.OwnerID, user.Active, user.CreatedAt.UTC())
	if err != nil {
		return s.mapInsertErr(err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT username, password, role, owner_id, active, created_at FROM users ORDER BY username`); err != nil {
		return nil, err
	}
	users := make([]domain.UserAccount, 0, len(rows))
	for _, row := range rows {
		users = append(users, domain.UserAccount{
			Username:  row.Username,
			Password:  row.Password,
			Role:      row.Role,
			OwnerID:   row.OwnerID,
			Active:    row.Active,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET password = ? WHERE username = ?`), password, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
