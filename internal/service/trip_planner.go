package service

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"transitguide/internal/ai"
	"transitguide/internal/envelope"
	"transitguide/internal/maps"
	"transitguide/internal/tdx"
)

// MaxInputChars is the longest query accepted, counted in characters.
const MaxInputChars = 200

// User-facing replies. Kept verbatim: they are the product's voice.
const (
	MsgTooLong = "抱歉，你的訊息有點太長了，我小小的腦袋裝不下QQ\n\n" +
		"可以麻煩你用簡短的文字告訴我，你的起點、目的地，以及希望省錢還是省時間嗎？"

	MsgAmbiguous = "抱歉，我沒有聽懂你的起點及目的地，分別在哪裡QQ\n\n" +
		"可以再告訴我一次：你的起點、目的地，以及希望省錢還是省時間嗎？"

	MsgGeocodeFailed = "抱歉，你的起點及目的地，似乎有無法在地圖上搜尋到的地方QQ\n\n" +
		"可以再告訴我一次：你的起點、目的地，以及希望省錢還是省時間嗎？"

	MsgRouteNotFound = "抱歉，看起來這超出了我的能力範圍，無法給你幫助QQ\n\n" +
		"你可以試試這些方法，幫助我更好地找到正確的路線：\n\n" +
		"1. 對地點更詳細的描述：比起**市政府**，**臺南市政府**會是更好的選擇！\n" +
		"2. 避免輸入國外地點：我只能協助規劃臺灣境內的路線\n" +
		"3. 起終點附近的大眾運輸：有些地方大眾運輸到不了，我就沒辦法規劃了\n\n" +
		"確認過上面幾點後，可以再告訴我一次：你的起點、目的地，以及希望省錢還是省時間嗎？"

	MsgNarrationFailed = "抱歉，小幫手在產生交通路線時，出了一點問題QQ\n\n" +
		"可以再告訴我一次：你的起點、目的地，以及希望省錢還是省時間嗎？"

	msgExtractionBackendFmt = "抱歉，連接 open ai 時出現問題。錯誤訊息：%s"
	msgRoutingBackendFmt    = "抱歉，連接 TDX 時出現問題。錯誤訊息：%s"
)

// IntentExtractor is the language-understanding stage.
type IntentExtractor interface {
	Extract(ctx context.Context, text string) envelope.Envelope[ai.Intent]
}

// Geocoder is the place-resolution stage.
type Geocoder interface {
	Resolve(ctx context.Context, intent ai.Intent) envelope.Envelope[maps.GeoIntent]
}

// Router is the transit-routing stage.
type Router interface {
	Route(ctx context.Context, geo maps.GeoIntent) envelope.Envelope[tdx.RouteResult]
}

// ItineraryNarrator is the language-generation stage.
type ItineraryNarrator interface {
	Narrate(ctx context.Context, combined string) envelope.Envelope[string]
}

// TripPlanner orchestrates extraction, geocoding, routing and narration.
type TripPlanner struct {
	extractor IntentExtractor
	geocoder  Geocoder
	router    Router
	narrator  ItineraryNarrator
	log       *zap.Logger
}

// NewTripPlanner creates a TripPlanner with initialized dependencies.
func NewTripPlanner(extractor IntentExtractor, geocoder Geocoder, router Router, narrator ItineraryNarrator, log *zap.Logger) *TripPlanner {
	return &TripPlanner{
		extractor: extractor,
		geocoder:  geocoder,
		router:    router,
		narrator:  narrator,
		log:       log,
	}
}

// Handle answers one user query. It always returns an envelope whose message
// (on failure) is ready to show to the user; later stages never run after a
// failed one.
func (p *TripPlanner) Handle(ctx context.Context, userText string) envelope.Envelope[string] {
	start := time.Now()

	if utf8.RuneCountInString(userText) > MaxInputChars {
		p.logOutcome("input", envelope.KindInputTooLong, start)
		return envelope.Fail[string](MsgTooLong, envelope.KindInputTooLong)
	}

	// 1. Extract origin, destination and preference.
	intent := p.extractor.Extract(ctx, userText)
	if !intent.OK {
		p.logOutcome("extract", intent.Kind, start, zap.String("detail", intent.Message))
		if intent.Kind == envelope.KindExtractionAmbiguous {
			return envelope.Fail[string](MsgAmbiguous, intent.Kind)
		}
		return envelope.Fail[string](fmt.Sprintf(msgExtractionBackendFmt, intent.Message), envelope.KindExtractionBackend)
	}

	// 2. Resolve both places to coordinates.
	geo := p.geocoder.Resolve(ctx, intent.Data)
	if !geo.OK {
		p.logOutcome("geocode", envelope.KindGeocodeFailed, start, zap.String("detail", geo.Message))
		return envelope.Fail[string](MsgGeocodeFailed, envelope.KindGeocodeFailed)
	}

	// 3. Find the itinerary.
	route := p.router.Route(ctx, geo.Data)
	if !route.OK {
		p.logOutcome("route", route.Kind, start, zap.String("detail", route.Message))
		if route.Kind == envelope.KindRouteNotFound {
			return envelope.Fail[string](MsgRouteNotFound, route.Kind)
		}
		return envelope.Fail[string](fmt.Sprintf(msgRoutingBackendFmt, route.Message), envelope.KindRoutingBackend)
	}

	// 4. Narrate; the prompt needs the extracted intent next to the itinerary.
	article := p.narrator.Narrate(ctx, intent.Data.Raw+string(route.Data))
	if !article.OK {
		p.logOutcome("narrate", envelope.KindNarrationFailed, start, zap.String("detail", article.Message))
		return envelope.Fail[string](MsgNarrationFailed, envelope.KindNarrationFailed)
	}

	p.log.Info("trip planned",
		zap.String("origin", intent.Data.Origin),
		zap.String("destination", intent.Data.Destination),
		zap.Int("gc", geo.Data.PreferenceCode),
		zap.Duration("latency", time.Since(start)),
	)
	return envelope.OK(article.Data)
}

func (p *TripPlanner) logOutcome(stage string, kind envelope.Kind, start time.Time, fields ...zap.Field) {
	fields = append(fields,
		zap.String("stage", stage),
		zap.String("kind", string(kind)),
		zap.Duration("latency", time.Since(start)),
	)
	p.log.Info("trip planning stopped", fields...)
}
