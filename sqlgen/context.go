package sqlgen

// defaultSchemaContext documents the analytical database for the model. It is
// replaced by SQLConfig.SchemaContext when operators bring their own schema.
const defaultSchemaContext = `DATABASE SCHEMA DOCUMENTATION

This is an e-commerce database with three main tables:
- customers: customer information including name, email, segment and country
- products: product catalog with name, category, price, stock quantity and description
- orders: customer orders with order date, total amount, status and shipping address

The customers table has a one-to-many relationship with orders.

Notes:
- For order revenue use orders.total_amount, not products.price.
- Customer segments are 'SMB', 'Enterprise', 'Individual' (case-sensitive).
- Order statuses are 'Pending', 'Delivered', 'Cancelled', 'Processing' (case-sensitive).
- Join customers and orders via orders.customer_id = customers.id.

Table: customers
  - id (SERIAL PRIMARY KEY)
  - name (VARCHAR)
  - email (VARCHAR)
  - segment (VARCHAR)
  - country (VARCHAR)
  - created_at (TIMESTAMP)
  - updated_at (TIMESTAMP)

Table: products
  - id (SERIAL PRIMARY KEY)
  - name (VARCHAR)
  - category (VARCHAR)
  - price (DECIMAL)
  - stock_quantity (INT)
  - description (TEXT)
  - created_at (TIMESTAMP)
  - updated_at (TIMESTAMP)

Table: orders
  - id (SERIAL PRIMARY KEY)
  - customer_id (INT, references customers.id)
  - order_date (DATE)
  - total_amount (DECIMAL)
  - status (VARCHAR)
  - shipping_address (TEXT)
  - created_at (TIMESTAMP)
  - updated_at (TIMESTAMP)

Example queries:

Question: How many customers do we have?
SQL: SELECT COUNT(*) AS customer_count FROM customers;

Question: What is the total revenue from all orders?
SQL: SELECT SUM(total_amount) AS total_revenue FROM orders;

Question: List all delivered orders
SQL: SELECT * FROM orders WHERE status = 'Delivered' ORDER BY order_date DESC;

Question: How many orders per customer segment?
SQL: SELECT c.segment, COUNT(o.id) AS order_count FROM customers c LEFT JOIN orders o ON c.id = o.customer_id GROUP BY c.segment;

Question: Top 10 customers by total spending
SQL: SELECT c.name, c.email, SUM(o.total_amount) AS total_spent FROM customers c JOIN orders o ON c.id = o.customer_id GROUP BY c.id, c.name, c.email ORDER BY total_spent DESC LIMIT 10;
`
