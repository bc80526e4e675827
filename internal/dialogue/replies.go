package dialogue

import (
	"fmt"
	"strconv"
	"strings"

	"chat-order-service/internal/conversation"
)

const (
	msgInternalError   = "متاسفانه مشکلی پیش آمد. لطفا چند لحظه دیگر دوباره پیام بدهید."
	msgHelp            = "سلام! کد محصول (مثلا A0001) یا نام محصولی که می‌خواهید را بفرستید."
	msgNoActiveOrder   = "در حال حاضر سفارش فعالی ندارید. کد یا نام محصول را بفرستید."
	msgCancelled       = "سفارش لغو شد. هر وقت خواستید کد یا نام محصول را بفرستید."
	msgNothingToCancel = "سفارش فعالی برای لغو وجود ندارد."
	msgNoResults       = "محصولی با این مشخصات پیدا نشد. لطفا کد محصول یا نام دیگری را امتحان کنید."
	msgInvalidQty      = "تعداد باید حداقل ۱ باشد."
	msgCustomerSaved   = "مشخصات شما ذخیره شد. حالا کد یا نام محصول را بفرستید."
	msgPickOrCode      = "شماره یکی از گزینه‌ها یا کد محصول را بفرستید."
	msgConfirmHint     = "برای ثبت نهایی «تایید» و برای انصراف «لغو» را بفرستید."
	msgNextStepHint    = "برای ادامه «تایید» را بفرستید یا مشخصات ارسال را بنویسید."
	msgCommitInvalid   = "اطلاعات سفارش معتبر نیست. لطفا سایز، رنگ و مشخصات را بررسی کنید."
	msgCommitFailed    = "ثبت سفارش با خطا مواجه شد. لطفا دوباره «تایید» را بفرستید."
	msgCommitGone      = "این محصول دیگر در فروشگاه موجود نیست. برای انصراف «لغو» را بفرستید."
)

var fieldLabels = map[conversation.Field]string{
	conversation.FieldName:       "نام",
	conversation.FieldPhone:      "شماره موبایل",
	conversation.FieldAddress:    "آدرس",
	conversation.FieldPostalCode: "کد پستی",
}

func formatPrice(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func joinList(items []string) string {
	return strings.Join(items, "، ")
}

func msgProductNotFound(code string) string {
	return fmt.Sprintf("محصولی با کد %s پیدا نشد.", code)
}

func msgUnavailable(p conversation.ProductSnapshot) string {
	return fmt.Sprintf("متاسفانه %s (%s) در حال حاضر موجود نیست.", p.Name, p.Code)
}

func msgNotEnoughStock(stock int) string {
	return fmt.Sprintf("فقط %d عدد از این محصول موجود است.", stock)
}

func msgSizeUnavailable(sizes []string) string {
	return fmt.Sprintf("این سایز موجود نیست. سایزهای موجود: %s", joinList(sizes))
}

func msgColorUnavailable(colors []string) string {
	return fmt.Sprintf("این رنگ موجود نیست. رنگ‌های موجود: %s", joinList(colors))
}

func msgAskSize(sizes []string) string {
	return fmt.Sprintf("لطفا سایز را انتخاب کنید: %s", joinList(sizes))
}

func msgAskCustomer(missing []conversation.Field) string {
	labels := make([]string, 0, len(missing))
	for _, f := range missing {
		labels = append(labels, fieldLabels[f])
	}
	return fmt.Sprintf("برای ثبت سفارش لطفا این موارد را بفرستید: %s", joinList(labels))
}

func productCard(p conversation.ProductSnapshot) string {
	lines := []string{
		fmt.Sprintf("%s (%s)، قیمت %s تومان، موجودی %d عدد.", p.Name, p.Code, formatPrice(p.Price), p.Stock),
	}
	if len(p.AvailableSizes) > 0 {
		lines = append(lines, "سایزهای موجود: "+joinList(p.AvailableSizes))
	}
	if len(p.AvailableColors) > 0 {
		lines = append(lines, "رنگ‌های موجود: "+joinList(p.AvailableColors))
	}
	return strings.Join(lines, "\n")
}

func wantedLine(w conversation.Wanted) string {
	parts := []string{fmt.Sprintf("تعداد: %d", w.Qty)}
	if w.Size != "" {
		parts = append(parts, "سایز: "+w.Size)
	}
	if w.Color != "" {
		parts = append(parts, "رنگ: "+w.Color)
	}
	return joinList(parts)
}

func candidateList(codes, names []string) string {
	lines := []string{"چند محصول پیدا شد:"}
	for i := range codes {
		lines = append(lines, fmt.Sprintf("%d. %s (%s)", i+1, names[i], codes[i]))
	}
	lines = append(lines, msgPickOrCode)
	return strings.Join(lines, "\n")
}

func orderSummary(st conversation.State) string {
	p := st.SelectedProduct
	w := st.Wanted
	c := st.Customer
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)

	lines := []string{
		"خلاصه سفارش:",
		fmt.Sprintf("محصول: %s (%s)", p.Name, p.Code),
		wantedLine(w),
		fmt.Sprintf("مبلغ کل: %s تومان", formatPrice(p.Price*int64(w.Qty))),
		fmt.Sprintf("%s: %s", fieldLabels[conversation.FieldName], name),
		fmt.Sprintf("%s: %s", fieldLabels[conversation.FieldPhone], c.Phone),
		fmt.Sprintf("%s: %s", fieldLabels[conversation.FieldAddress], c.Address),
		fmt.Sprintf("%s: %s", fieldLabels[conversation.FieldPostalCode], c.PostalCode),
		msgConfirmHint,
	}
	return strings.Join(lines, "\n")
}

func msgOrderPlaced(orderID, total int64) string {
	return fmt.Sprintf("سفارش شما با شماره %d ثبت شد. مبلغ قابل پرداخت: %s تومان. ممنون از خرید شما!",
		orderID, formatPrice(total))
}

func msgCommitOutOfStock(p *conversation.ProductSnapshot) string {
	return fmt.Sprintf("موجودی %s برای این تعداد کافی نیست. تعداد را کمتر کنید یا «لغو» را بفرستید.", p.Name)
}
