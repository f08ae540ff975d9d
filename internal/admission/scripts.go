package admission

import "github.com/redis/go-redis/v9"

// Every multi-key protocol on the queue store runs as one script so no other
// client observes a half-applied transition.  Session keys are derived
// inside the scripts from a prefix argument, which ties the layout to a
// single Redis node.

// KEYS: counter, queue, session, active_queues
// ARGV: visitor, event_id, now_ms, session_ttl_s
var enqueueScript = redis.NewScript(`
    local seq = redis.call('HGET', KEYS[3], 'seq')
    if seq then
        return { 'EXISTS', tonumber(seq) }
    end

    seq = redis.call('INCR', KEYS[1])
    redis.call('ZADD', KEYS[2], seq, ARGV[1])
    redis.call('SADD', KEYS[4], ARGV[2])
    redis.call('HSET', KEYS[3], 'status', 'WAITING', 'event_id', ARGV[2], 'seq', seq, 'enqueued_at', ARGV[3])
    redis.call('EXPIRE', KEYS[3], tonumber(ARGV[4]))
    return { 'OK', seq }
`)

// KEYS: session, queue, ready
// ARGV: visitor, session_ttl_s
var markReadyScript = redis.NewScript(`
    local status = redis.call('HGET', KEYS[1], 'status')
    if not status then
        return 'SESSION_EXPIRED'
    end
    if status == 'READY' or status == 'SERVED' or status == 'ACTIVE' then
        return 'IGNORED'
    end

    local score = redis.call('ZSCORE', KEYS[2], ARGV[1])
    if not score then
        return 'NOT_IN_QUEUE'
    end

    redis.call('ZADD', KEYS[3], score, ARGV[1])
    redis.call('ZREM', KEYS[2], ARGV[1])
    redis.call('HSET', KEYS[1], 'status', 'READY')
    redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
    return 'READY'
`)

// KEYS: ready, queue, booking_active, active_queues
// ARGV: session_prefix, now_ms, booking_ttl_s, max_active, event_id
var serveNextScript = redis.NewScript(`
    local now = tonumber(ARGV[2])
    local active = redis.call('ZCOUNT', KEYS[3], '(' .. ARGV[2], '+inf')
    if active >= tonumber(ARGV[4]) then
        return { 'LIMIT_REACHED' }
    end

    local popped = redis.call('ZPOPMIN', KEYS[1])
    if #popped == 0 then
        if redis.call('ZCARD', KEYS[2]) == 0 then
            redis.call('SREM', KEYS[4], ARGV[5])
            return { 'EMPTY' }
        end
        return { 'NO_READY' }
    end

    local visitor = popped[1]
    local session = ARGV[1] .. visitor
    if redis.call('EXISTS', session) == 0 then
        return { 'SKIP_SESSION_EXPIRED', visitor }
    end

    redis.call('ZADD', KEYS[3], now + tonumber(ARGV[3]) * 1000, visitor)
    redis.call('HSET', session, 'status', 'SERVED', 'served_at', ARGV[2])
    return { 'OK', visitor }
`)

// KEYS: booking_active, ready, session, active_queues
// ARGV: visitor, session_ttl_s, event_id
//
// Undoes a grant that could not be completed: the slot is freed and a
// SERVED visitor goes back to the ready set at its original sequence.
var revertGrantScript = redis.NewScript(`
    redis.call('ZREM', KEYS[1], ARGV[1])

    local fields = redis.call('HMGET', KEYS[3], 'status', 'seq')
    if fields[1] ~= 'SERVED' or not fields[2] then
        return 0
    end

    redis.call('ZADD', KEYS[2], tonumber(fields[2]), ARGV[1])
    redis.call('SADD', KEYS[4], ARGV[3])
    redis.call('HSET', KEYS[3], 'status', 'READY')
    redis.call('HDEL', KEYS[3], 'served_at')
    redis.call('EXPIRE', KEYS[3], tonumber(ARGV[2]))
    return 1
`)

// KEYS: queue, ready, ghost_cursor
// ARGV: session_prefix, batch
//
// Each pass checks at most batch members per set, starting after the last
// score checked on the previous pass.  The cursor is cleared once a set has
// been walked to its end so the next pass starts from the head again.
var cleanupGhostsScript = redis.NewScript(`
    local batch = tonumber(ARGV[2])
    local fields = { 'queue', 'ready' }
    local removed = 0
    for i = 1, 2 do
        local from = redis.call('HGET', KEYS[3], fields[i])
        if from then
            from = '(' .. from
        else
            from = '-inf'
        end

        local page = redis.call('ZRANGEBYSCORE', KEYS[i], from, '+inf', 'WITHSCORES', 'LIMIT', 0, batch)
        for j = 1, #page, 2 do
            local visitor = page[j]
            if redis.call('EXISTS', ARGV[1] .. visitor) == 0 then
                removed = removed + redis.call('ZREM', KEYS[i], visitor)
            end
        end

        -- a short page means the walk reached the tail
        if #page / 2 < batch then
            redis.call('HDEL', KEYS[3], fields[i])
        else
            redis.call('HSET', KEYS[3], fields[i], page[#page])
        end
    end
    return removed
`)

// KEYS: queue, ready, booking_active, counter, active_queues, ghost_cursor
// ARGV: session_prefix, event_id
var resetScript = redis.NewScript(`
    local queued = redis.call('ZRANGE', KEYS[1], 0, -1)
    local ready = redis.call('ZRANGE', KEYS[2], 0, -1)
    local active = redis.call('ZRANGE', KEYS[3], 0, -1)

    local deleted = 0
    for _, group in ipairs({ queued, ready, active }) do
        for _, visitor in ipairs(group) do
            deleted = deleted + redis.call('DEL', ARGV[1] .. visitor)
        end
    end

    redis.call('DEL', KEYS[1], KEYS[2], KEYS[3], KEYS[4], KEYS[6])
    redis.call('SREM', KEYS[5], ARGV[2])
    return { deleted, #queued, #ready }
`)
