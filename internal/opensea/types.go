package opensea

// Wire shapes of the OpenSea v2 endpoints we consume. Only the fields we
// read are declared; everything else in the payload is ignored.

type listingsResp struct {
	Listings []RawListing `json:"listings"`
	Next     string       `json:"next"`
}

type RawListing struct {
	Price struct {
		Current struct {
			Currency string `json:"currency"`
			Decimals int    `json:"decimals"`
			Value    string `json:"value"` // wei, stringified uint256
		} `json:"current"`
	} `json:"price"`
	ProtocolData struct {
		Parameters struct {
			Offerer string `json:"offerer"`
			Offer   []struct {
				IdentifierOrCriteria string `json:"identifierOrCriteria"`
			} `json:"offer"`
		} `json:"parameters"`
	} `json:"protocol_data"`
}

// TokenID returns the offered token identifier or "" when the listing
// carries no offer item (skip-this-record semantics).
func (l RawListing) TokenID() string {
	offer := l.ProtocolData.Parameters.Offer
	if len(offer) == 0 {
		return ""
	}
	return offer[0].IdentifierOrCriteria
}

type eventsResp struct {
	AssetEvents []RawEvent `json:"asset_events"`
	Next        string     `json:"next"`
}

type RawEvent struct {
	EventType string `json:"event_type"`
	Seller    string `json:"seller"`
	Buyer     string `json:"buyer"`
	Payment   struct {
		Quantity string `json:"quantity"` // wei
	} `json:"payment"`
	NFT struct {
		Identifier      string `json:"identifier"`
		ImageURL        string `json:"image_url"`
		DisplayImageURL string `json:"display_image_url"`
	} `json:"nft"`
	EventTimestamp int64 `json:"event_timestamp"` // unix seconds
}

type accountResp struct {
	Username string `json:"username"`
}

type nftResp struct {
	NFT struct {
		Name            string `json:"name"`
		ImageURL        string `json:"image_url"`
		DisplayImageURL string `json:"display_image_url"`
	} `json:"nft"`
}
