// Package types contains common types shared by the proxy packages.
package types
