package client

import (
	"time"

	"github.com/inventoryhub/marketsync/internal/model"
)

// Ingress DTOs for the marketplace REST API. Payloads are narrowed to typed
// structs here so nothing downstream touches raw JSON.

type tokenDTO struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

type itemDTO struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Price             float64   `json:"price"`
	OriginalPrice     float64   `json:"original_price"`
	AvailableQuantity int       `json:"available_quantity"`
	SoldQuantity      int       `json:"sold_quantity"`
	Status            string    `json:"status"`
	LastUpdated       time.Time `json:"last_updated"`
	Shipping          struct {
		Mode string `json:"mode"`
	} `json:"shipping"`
}

func (d *itemDTO) toListing() *model.RemoteListing {
	listing := &model.RemoteListing{
		ID:                d.ID,
		Title:             d.Title,
		PriceCents:        model.CentsFromFloat(d.Price),
		AvailableQuantity: d.AvailableQuantity,
		SoldQuantity:      d.SoldQuantity,
		Status:            model.ListingStatus(d.Status),
		LastUpdated:       d.LastUpdated,
		ShippingMode:      d.Shipping.Mode,
	}
	if d.OriginalPrice > 0 {
		listing.OriginalPriceCents = model.CentsFromFloat(d.OriginalPrice)
	}
	return listing
}

type priceEntryDTO struct {
	Type          string  `json:"type"`
	Amount        float64 `json:"amount"`
	RegularAmount float64 `json:"regular_amount"`
}

type pricesDTO struct {
	Prices []priceEntryDTO `json:"prices"`
}

type pagingDTO struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

type itemSearchDTO struct {
	Results []string  `json:"results"`
	Paging  pagingDTO `json:"paging"`
}

type orderItemDTO struct {
	Item struct {
		ID string `json:"id"`
	} `json:"item"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type orderDTO struct {
	ID          int64          `json:"id"`
	Status      string         `json:"status"`
	DateCreated time.Time      `json:"date_created"`
	TotalAmount float64        `json:"total_amount"`
	OrderItems  []orderItemDTO `json:"order_items"`
}

type orderSearchDTO struct {
	Results []orderDTO `json:"results"`
	Paging  pagingDTO  `json:"paging"`
}
